package fmi2

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullTable() *CallTable {
	ok := func(Component) Status { return StatusOK }
	return &CallTable{
		Instantiate: func(string, Type, string, string, *CallbackFunctions, Boolean, Boolean) Component {
			return 1
		},
		FreeInstance:            func(Component) {},
		SetupExperiment:         func(Component, Boolean, float64, float64, Boolean, float64) Status { return StatusOK },
		EnterInitializationMode: ok,
		ExitInitializationMode:  ok,
		Terminate:               ok,
		GetReal:                 func(Component, *ValueReference, uint64, *float64) Status { return StatusOK },
		SetReal:                 func(Component, *ValueReference, uint64, *float64) Status { return StatusOK },
		SetTime:                 func(Component, float64) Status { return StatusOK },
		EnterEventMode:          ok,
		NewDiscreteStates:       func(Component, *EventInfo) Status { return StatusOK },
		EnterContinuousTimeMode: ok,
		CompletedIntegratorStep: func(Component, Boolean, *Boolean, *Boolean) Status { return StatusOK },
		GetEventIndicators:      func(Component, *float64, uint64) Status { return StatusOK },
	}
}

func TestSymbols(t *testing.T) {
	required, optional := Symbols()

	assert.Contains(t, required, "fmi2GetReal")
	assert.Contains(t, required, "fmi2SetReal")
	assert.Contains(t, required, "fmi2SetTime")
	assert.Contains(t, required, "fmi2CompletedIntegratorStep")
	assert.Contains(t, required, "fmi2GetEventIndicators")
	assert.Contains(t, required, "fmi2EnterEventMode")
	assert.Contains(t, required, "fmi2EnterContinuousTimeMode")
	assert.Contains(t, required, "fmi2NewDiscreteStates")
	assert.Contains(t, optional, "fmi2GetVersion")
	assert.NotContains(t, required, "fmi2Reset")
}

func TestValidate(t *testing.T) {
	require.NoError(t, fullTable().Validate())

	ct := fullTable()
	ct.GetEventIndicators = nil
	err := ct.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingSymbol))

	var serr *SymbolError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "fmi2GetEventIndicators", serr.Symbol)
}

func TestValidate_OptionalMayBeNil(t *testing.T) {
	ct := fullTable()
	ct.GetVersion = nil
	ct.Reset = nil
	assert.NoError(t, ct.Validate())
	assert.False(t, ct.Has("fmi2Reset"))
	assert.True(t, ct.Has("fmi2GetReal"))
}

func TestCheckSignature(t *testing.T) {
	assert.NoError(t, checkSignature(reflect.TypeOf(RealAccessFunc(nil))))
	assert.NoError(t, checkSignature(reflect.TypeOf(CompletedIntegratorStepFunc(nil))))
	assert.NoError(t, checkSignature(reflect.TypeOf(InstantiateFunc(nil))))

	err := checkSignature(reflect.TypeOf(func(int) Status { return StatusOK }))
	assert.ErrorIs(t, err, ErrSignature)

	err = checkSignature(reflect.TypeOf(func([]float64) Status { return StatusOK }))
	assert.ErrorIs(t, err, ErrSignature)

	err = checkSignature(reflect.TypeOf(func() (Status, error) { return StatusOK, nil }))
	assert.ErrorIs(t, err, ErrSignature)
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusOK.Succeeded())
	assert.True(t, StatusWarning.Succeeded())
	assert.False(t, StatusDiscard.Succeeded())
	assert.False(t, StatusError.Succeeded())
	assert.False(t, StatusFatal.Succeeded())
	assert.Equal(t, "fmi2Error", StatusError.String())
	assert.Equal(t, "fmi2Status(9)", Status(9).String())
}

func TestBoolean(t *testing.T) {
	assert.Equal(t, True, BoolOf(true))
	assert.Equal(t, False, BoolOf(false))
	assert.True(t, Boolean(7).Bool())
}

func TestBindingCloseRunsHooksOnce(t *testing.T) {
	var order []string
	b, err := NewBinding(fullTable(), func() error {
		order = append(order, "library")
		return nil
	})
	require.NoError(t, err)
	b.OnClose(func() error {
		order = append(order, "environment")
		return errors.New("boom")
	})

	err = b.Close()
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"environment", "library"}, order)

	assert.EqualError(t, b.Close(), "boom")
	assert.Len(t, order, 2)
}

func TestNewBinding_RejectsIncompleteTable(t *testing.T) {
	ct := fullTable()
	ct.SetTime = nil
	_, err := NewBinding(ct)
	assert.ErrorIs(t, err, ErrMissingSymbol)
}
