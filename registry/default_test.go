package registry

import (
	"context"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestDefaultSellers(t *testing.T) {
	sellers := DefaultSellers()

	check.Equal(t, 11, len(sellers))
	check.NoError(t, ValidateSellers(sellers))

	eaf := 0
	for _, s := range sellers {
		if s.IsEAF {
			eaf++
			check.Equal(t, greenMSRP, s.MSRP)
		}
	}
	check.Equal(t, 6, eaf)
}

func TestDefaultSource_NoJitter(t *testing.T) {
	sellers, err := (&DefaultSource{}).Load(context.Background())
	assert.NoError(t, err)
	check.Equal(t, DefaultSellers(), sellers)
}

func TestDefaultSource_SeededJitter(t *testing.T) {
	src := &DefaultSource{Jitter: 0.02, Seed: 42}

	first, err := src.Load(context.Background())
	assert.NoError(t, err)
	second, err := src.Load(context.Background())
	assert.NoError(t, err)
	check.Equal(t, first, second)

	base := DefaultSellers()
	changed := false
	for i, s := range first {
		check.True(t, s.BaseCost >= base[i].BaseCost*0.98 && s.BaseCost <= base[i].BaseCost*1.02)
		if s.BaseCost != base[i].BaseCost {
			changed = true
		}
		if s.IsEAF {
			check.Equal(t, greenMSRP, s.MSRP)
		} else {
			check.True(t, s.MSRP >= base[i].MSRP*0.98 && s.MSRP <= base[i].MSRP*1.02)
		}
	}
	check.True(t, changed)

	other, err := (&DefaultSource{Jitter: 0.02, Seed: 43}).Load(context.Background())
	assert.NoError(t, err)
	check.NotEqual(t, first, other)
}
