package supply

import "github.com/pkg/errors"

// Limited lets at most Max pages be outstanding from the wrapped Source and
// counts the traffic through it.
type Limited struct {
	Source   Source
	// Max of 0 only counts.
	Max      int
	Acquired int
	Released int
}

func (l *Limited) Outstanding() int {
	return l.Acquired - l.Released
}

func (l *Limited) AcquirePage(class int) ([]byte, error) {
	if l.Max > 0 && l.Outstanding() >= l.Max {
		return nil, errors.Wrapf(ErrExhausted, "limit of %d pages", l.Max)
	}
	page, err := l.Source.AcquirePage(class)
	if err != nil {
		return nil, err
	}
	l.Acquired++
	return page, nil
}

func (l *Limited) ReleasePage(page []byte) {
	l.Released++
	l.Source.ReleasePage(page)
}
