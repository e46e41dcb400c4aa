package modeldesc

import "fmt"

type ModelDescription struct {
	FMIVersion              string             `xml:"fmiVersion,attr"`
	ModelName               string             `xml:"modelName,attr"`
	GUID                    string             `xml:"guid,attr"`
	Description             string             `xml:"description,attr"`
	GenerationTool          string             `xml:"generationTool,attr"`
	NumberOfEventIndicators int                `xml:"numberOfEventIndicators,attr"`
	ModelExchange           *ModelExchange     `xml:"ModelExchange"`
	CoSimulation            *struct{}          `xml:"CoSimulation"`
	DefaultExperiment       *DefaultExperiment `xml:"DefaultExperiment"`
	Variables               []Variable         `xml:"ModelVariables>ScalarVariable"`
}

type ModelExchange struct {
	ModelIdentifier                     string `xml:"modelIdentifier,attr"`
	NeedsExecutionTool                  bool   `xml:"needsExecutionTool,attr"`
	CompletedIntegratorStepNotNeeded    bool   `xml:"completedIntegratorStepNotNeeded,attr"`
	CanBeInstantiatedOnlyOncePerProcess bool   `xml:"canBeInstantiatedOnlyOncePerProcess,attr"`
}

type DefaultExperiment struct {
	StartTime *float64 `xml:"startTime,attr"`
	StopTime  *float64 `xml:"stopTime,attr"`
	Tolerance *float64 `xml:"tolerance,attr"`
	StepSize  *float64 `xml:"stepSize,attr"`
}

// Variable is one ScalarVariable. Only the Real type element is decoded in
// detail; other types are recorded by kind.
type Variable struct {
	Name           string `xml:"name,attr"`
	ValueReference uint32 `xml:"valueReference,attr"`
	Description    string `xml:"description,attr"`
	Causality      string `xml:"causality,attr"`
	Variability    string `xml:"variability,attr"`
	Initial        string `xml:"initial,attr"`

	Real        *Real     `xml:"Real"`
	Integer     *typeAttr `xml:"Integer"`
	Boolean     *typeAttr `xml:"Boolean"`
	String      *typeAttr `xml:"String"`
	Enumeration *typeAttr `xml:"Enumeration"`
}

type Real struct {
	Start      *float64 `xml:"start,attr"`
	Derivative int      `xml:"derivative,attr"`
	Unit       string   `xml:"unit,attr"`
	Nominal    *float64 `xml:"nominal,attr"`
}

type typeAttr struct {
	Start string `xml:"start,attr"`
}

// Kind names the variable's type element.
func (v *Variable) Kind() string {
	switch {
	case v.Real != nil:
		return "Real"
	case v.Integer != nil:
		return "Integer"
	case v.Boolean != nil:
		return "Boolean"
	case v.String != nil:
		return "String"
	case v.Enumeration != nil:
		return "Enumeration"
	default:
		return ""
	}
}

func (v *Variable) IsReal() bool { return v.Real != nil }

// Start returns the Real start value, if declared.
func (v *Variable) Start() (float64, bool) {
	if v.Real == nil || v.Real.Start == nil {
		return 0, false
	}
	return *v.Real.Start, true
}

// EffectiveCausality applies the FMI2 default ("local").
func (v *Variable) EffectiveCausality() string {
	if v.Causality == "" {
		return "local"
	}
	return v.Causality
}

// EffectiveVariability applies the FMI2 default ("continuous").
func (v *Variable) EffectiveVariability() string {
	if v.Variability == "" {
		return "continuous"
	}
	return v.Variability
}

// EffectiveInitial returns the declared initial attribute, or the default
// the FMI2 standard assigns to the causality/variability combination when
// it is omitted. Variables for which initial is not allowed return "".
func (v *Variable) EffectiveInitial() string {
	if v.Initial != "" {
		return v.Initial
	}
	causality := v.EffectiveCausality()
	variability := v.EffectiveVariability()
	switch causality {
	case "parameter":
		return "exact"
	case "calculatedParameter":
		return "calculated"
	case "input", "independent":
		return ""
	}
	if variability == "constant" {
		return "exact"
	}
	return "calculated"
}

func (md *ModelDescription) Validate() error {
	if md.FMIVersion != "2.0" {
		return fmt.Errorf("modeldesc: unsupported fmiVersion %q", md.FMIVersion)
	}
	if md.ModelExchange == nil || md.ModelExchange.ModelIdentifier == "" {
		return fmt.Errorf("modeldesc: %s does not provide Model-Exchange", md.ModelName)
	}
	if md.NumberOfEventIndicators < 0 {
		return fmt.Errorf("modeldesc: negative numberOfEventIndicators")
	}
	seen := make(map[string]bool, len(md.Variables))
	for i := range md.Variables {
		v := &md.Variables[i]
		if v.Name == "" {
			return fmt.Errorf("modeldesc: variable %d has no name", i+1)
		}
		if seen[v.Name] {
			return fmt.Errorf("modeldesc: duplicate variable %q", v.Name)
		}
		seen[v.Name] = true
		if v.Real != nil && v.Real.Derivative != 0 {
			if d := v.Real.Derivative; d < 1 || d > len(md.Variables) {
				return fmt.Errorf("modeldesc: %s: derivative index %d out of range", v.Name, d)
			}
		}
	}
	return nil
}

// DerivativeOf returns the index of the variable holding the derivative of
// the variable at index i, or -1.
func (md *ModelDescription) DerivativeOf(i int) int {
	for j := range md.Variables {
		r := md.Variables[j].Real
		if r != nil && r.Derivative == i+1 {
			return j
		}
	}
	return -1
}

// Index returns the position of the named variable, or -1.
func (md *ModelDescription) Index(name string) int {
	for i := range md.Variables {
		if md.Variables[i].Name == name {
			return i
		}
	}
	return -1
}

// StartTime and StopTime fall back to 0 and start+1 like most importers do
// when the DefaultExperiment omits them.
func (md *ModelDescription) StartTime() float64 {
	if md.DefaultExperiment != nil && md.DefaultExperiment.StartTime != nil {
		return *md.DefaultExperiment.StartTime
	}
	return 0
}

func (md *ModelDescription) StopTime() float64 {
	if md.DefaultExperiment != nil && md.DefaultExperiment.StopTime != nil {
		return *md.DefaultExperiment.StopTime
	}
	return md.StartTime() + 1
}
