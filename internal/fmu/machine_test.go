package fmu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/fmusim/internal/fmu"
)

var _ = Describe("Machine", func() {
	var (
		m        *fmu.Machine
		observed [][2]fmu.Mode
	)

	BeforeEach(func() {
		m = fmu.NewMachine()
		observed = nil
		m.OnTransition(func(from, to fmu.Mode) {
			observed = append(observed, [2]fmu.Mode{from, to})
		})
	})

	initialize := func() {
		Expect(m.Allow(fmu.CallSetupExperiment)).To(Succeed())
		Expect(m.Allow(fmu.CallEnterInitializationMode)).To(Succeed())
		Expect(m.Transition(fmu.Initializing)).To(Succeed())
		Expect(m.Allow(fmu.CallExitInitializationMode)).To(Succeed())
		m.ExitedInitialization()
		Expect(m.Allow(fmu.CallNewDiscreteStates)).To(Succeed())
		Expect(m.Allow(fmu.CallEnterContinuousTimeMode)).To(Succeed())
		Expect(m.Transition(fmu.ContinuousTime)).To(Succeed())
	}

	It("starts Instantiated", func() {
		Expect(m.Mode()).To(Equal(fmu.Instantiated))
		Expect(m.History()).To(Equal([]fmu.Mode{fmu.Instantiated}))
	})

	Context("while Instantiated", func() {
		It("accepts start values and experiment setup", func() {
			Expect(m.Allow(fmu.CallSetReal)).To(Succeed())
			Expect(m.Allow(fmu.CallSetupExperiment)).To(Succeed())
		})

		It("rejects continuous-time calls", func() {
			for _, c := range []fmu.Call{fmu.CallGetReal, fmu.CallSetTime, fmu.CallGetEventIndicators, fmu.CallEnterEventMode, fmu.CallTerminate} {
				Expect(m.Allow(c)).To(MatchError(fmu.ErrProtocolViolation), string(c))
			}
		})

		It("cannot skip initialization", func() {
			Expect(m.Transition(fmu.ContinuousTime)).To(MatchError(fmu.ErrProtocolViolation))
			Expect(m.Mode()).To(Equal(fmu.Instantiated))
			Expect(observed).To(BeEmpty())
		})
	})

	Context("while Initializing", func() {
		BeforeEach(func() {
			Expect(m.Transition(fmu.Initializing)).To(Succeed())
		})

		It("runs the event iteration only after exiting initialization mode", func() {
			Expect(m.Allow(fmu.CallNewDiscreteStates)).To(MatchError(fmu.ErrProtocolViolation))
			Expect(m.Allow(fmu.CallEnterContinuousTimeMode)).To(MatchError(fmu.ErrProtocolViolation))
			m.ExitedInitialization()
			Expect(m.Allow(fmu.CallNewDiscreteStates)).To(Succeed())
			Expect(m.Allow(fmu.CallEnterContinuousTimeMode)).To(Succeed())
		})

		It("stops accepting start values once initialization mode is exited", func() {
			Expect(m.Allow(fmu.CallSetReal)).To(Succeed())
			m.ExitedInitialization()
			Expect(m.Allow(fmu.CallSetReal)).To(MatchError(fmu.ErrProtocolViolation))
			Expect(m.Allow(fmu.CallExitInitializationMode)).To(MatchError(fmu.ErrProtocolViolation))
		})
	})

	Context("in ContinuousTime", func() {
		BeforeEach(initialize)

		It("allows integration calls", func() {
			for _, c := range []fmu.Call{fmu.CallSetTime, fmu.CallSetReal, fmu.CallGetReal, fmu.CallCompletedIntegratorStep, fmu.CallGetEventIndicators} {
				Expect(m.Allow(c)).To(Succeed(), string(c))
			}
			Expect(m.Allow(fmu.CallNewDiscreteStates)).To(MatchError(fmu.ErrProtocolViolation))
		})

		It("cycles through EventMode", func() {
			for i := 0; i < 3; i++ {
				Expect(m.Allow(fmu.CallEnterEventMode)).To(Succeed())
				Expect(m.Transition(fmu.EventMode)).To(Succeed())
				Expect(m.Allow(fmu.CallGetEventIndicators)).To(MatchError(fmu.ErrProtocolViolation))
				Expect(m.Allow(fmu.CallCompletedIntegratorStep)).To(MatchError(fmu.ErrProtocolViolation))
				Expect(m.Allow(fmu.CallTerminate)).To(MatchError(fmu.ErrProtocolViolation))
				Expect(m.Allow(fmu.CallNewDiscreteStates)).To(Succeed())
				Expect(m.Transition(fmu.ContinuousTime)).To(Succeed())
			}
			Expect(fmu.ValidPath(m.History())).To(BeTrue())
			Expect(observed).To(HaveLen(8))
		})

		It("cannot terminate from EventMode", func() {
			Expect(m.Transition(fmu.EventMode)).To(Succeed())
			Expect(m.Transition(fmu.Terminated)).To(MatchError(fmu.ErrProtocolViolation))
		})
	})

	Context("once Terminated", func() {
		BeforeEach(func() {
			initialize()
			Expect(m.Transition(fmu.Terminated)).To(Succeed())
		})

		It("is absorbing", func() {
			for _, to := range []fmu.Mode{fmu.Instantiated, fmu.Initializing, fmu.ContinuousTime, fmu.EventMode, fmu.Terminated} {
				Expect(m.Transition(to)).To(MatchError(fmu.ErrProtocolViolation))
			}
			for _, c := range []fmu.Call{fmu.CallSetReal, fmu.CallGetReal, fmu.CallSetTime, fmu.CallEnterEventMode, fmu.CallTerminate} {
				Expect(m.Allow(c)).To(MatchError(fmu.ErrProtocolViolation), string(c))
			}
			Expect(m.History()).To(Equal([]fmu.Mode{fmu.Instantiated, fmu.Initializing, fmu.ContinuousTime, fmu.Terminated}))
		})
	})

	DescribeTable("ValidPath",
		func(path []fmu.Mode, valid bool) {
			Expect(fmu.ValidPath(path)).To(Equal(valid))
		},
		Entry("empty", []fmu.Mode{}, false),
		Entry("full run", []fmu.Mode{fmu.Instantiated, fmu.Initializing, fmu.ContinuousTime, fmu.EventMode, fmu.ContinuousTime, fmu.Terminated}, true),
		Entry("starts late", []fmu.Mode{fmu.Initializing, fmu.ContinuousTime}, false),
		Entry("skips initialization", []fmu.Mode{fmu.Instantiated, fmu.ContinuousTime}, false),
		Entry("event to event", []fmu.Mode{fmu.Instantiated, fmu.Initializing, fmu.ContinuousTime, fmu.EventMode, fmu.EventMode}, false),
	)

	It("reports the failing call and mode", func() {
		err := m.Allow(fmu.CallEnterEventMode)
		var fe *fmu.Error
		Expect(err).To(BeAssignableToTypeOf(fe))
		fe = err.(*fmu.Error)
		Expect(fe.Kind).To(Equal(fmu.KindProtocolViolation))
		Expect(fe.Call).To(Equal(fmu.CallEnterEventMode))
		Expect(fe.Mode).To(Equal(fmu.Instantiated))
		Expect(err.Error()).To(ContainSubstring("fmi2EnterEventMode"))
	})
})
