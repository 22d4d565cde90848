package tracking

import "time"

// IntroductionDateProvider decides when a finding that matched nothing was
// introduced. lines are the 1-based lines the finding covers and may be
// empty. Implementations must not have side effects visible to a Session.
type IntroductionDateProvider interface {
	IntroductionDate(filePath string, lines []int) (time.Time, error)
}

// DateProviderFunc adapts a function to IntroductionDateProvider.
type DateProviderFunc func(filePath string, lines []int) (time.Time, error)

// IntroductionDate calls f.
func (f DateProviderFunc) IntroductionDate(filePath string, lines []int) (time.Time, error) {
	return f(filePath, lines)
}

// NowProvider dates every new finding with the current time.
type NowProvider struct {
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// IntroductionDate returns the current time, truncated to the millisecond.
func (p NowProvider) IntroductionDate(string, []int) (time.Time, error) {
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return clock().Truncate(time.Millisecond), nil
}
