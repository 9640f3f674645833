package billing

import (
	"fmt"
	"strings"
	"time"
)

const invoiceSequenceModulo = 10000

// NumberGenerator produces invoice numbers of the form PREFIX-YYYYMM-NNNN.
type NumberGenerator struct {
	Prefix string
	Now    func() time.Time
}

func (g NumberGenerator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g NumberGenerator) prefix() string {
	if p := strings.TrimSpace(g.Prefix); p != "" {
		return strings.ToUpper(p)
	}
	return "DP"
}

// Seed returns the clock-derived suffix for a fresh number.
func (g NumberGenerator) Seed() int {
	return int(g.now().UnixMilli() % invoiceSequenceModulo)
}

// Format renders a number using the current month and the given suffix.
func (g NumberGenerator) Format(suffix int) string {
	now := g.now().UTC()
	suffix = ((suffix % invoiceSequenceModulo) + invoiceSequenceModulo) % invoiceSequenceModulo
	return fmt.Sprintf("%s-%04d%02d-%04d", g.prefix(), now.Year(), int(now.Month()), suffix)
}

// Next returns a fresh number.
func (g NumberGenerator) Next() string {
	return g.Format(g.Seed())
}
