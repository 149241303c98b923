package metrics

// MultiSink fans out records to multiple sinks. Optional recorders are
// forwarded only to the sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispatchResult forwards the results to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordDispatchResult(res []DispatchResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispatchResult(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordDispatchAck forwards ack events.
func (m *MultiSink) RecordDispatchAck(ev DispatchAckEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(DispatchAckRecorder); ok {
			if err := rec.RecordDispatchAck(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordRejection forwards gate rejections.
func (m *MultiSink) RecordRejection(ev RejectionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RejectionRecorder); ok {
			if err := rec.RecordRejection(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordTaskTransition forwards task transitions.
func (m *MultiSink) RecordTaskTransition(ev TaskTransitionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(TaskTransitionRecorder); ok {
			if err := rec.RecordTaskTransition(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
