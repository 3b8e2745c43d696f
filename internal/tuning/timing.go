package tuning

// Time runs op, measures how long it took and records the byte count op
// reports under kind. The result and error of op are returned unchanged;
// failed operations are not recorded.
func Time[T any](s *State, kind OperationKind, op func() (T, int64, error)) (T, error) {
	done := s.Stopwatch(kind)
	result, n, err := op()
	if err != nil {
		return result, err
	}
	done(n)
	return result, nil
}

// Stopwatch starts timing an operation of the given kind. Call the returned
// func with the number of bytes processed once the operation has finished.
func (s *State) Stopwatch(kind OperationKind) func(n int64) {
	s.mu.Lock()
	now := s.now
	s.mu.Unlock()

	start := now()
	return func(n int64) {
		elapsed := now().Sub(start)
		s.Record(kind, n, elapsed)
	}
}
