// Package modeldesc reads FMI 2.0 FMU packages: the modelDescription.xml
// metadata and the platform binary. Extraction is scoped: a [Package]
// owns its temporary directory and removes it exactly once on Close.
package modeldesc
