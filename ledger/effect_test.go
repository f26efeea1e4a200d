package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/studio-ledger/ledger"
)

func TestDeltaOf_EffectMatrix(t *testing.T) {
	// The four (kind, attended) combinations each map to one counter delta.
	tests := []struct {
		name   string
		effect ledger.Effect
		want   ledger.Delta
	}{
		{
			name:   "included attended",
			effect: ledger.Effect{Kind: ledger.KindIncluded, Attended: true},
			want:   ledger.Delta{Package: 1, Used: 1, Attended: 1},
		},
		{
			name:   "included absent",
			effect: ledger.Effect{Kind: ledger.KindIncluded, Attended: false},
			want:   ledger.Delta{},
		},
		{
			name:   "extra attended",
			effect: ledger.Effect{Kind: ledger.KindExtra, Attended: true},
			want:   ledger.Delta{Extra: 1},
		},
		{
			name:   "extra absent",
			effect: ledger.Effect{Kind: ledger.KindExtra, Attended: false},
			want:   ledger.Delta{Extra: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.DeltaOf(tt.effect))
		})
	}
}

func TestDelta_Neg_IsExactInverse(t *testing.T) {
	d := ledger.DeltaOf(ledger.Effect{Kind: ledger.KindIncluded, Attended: true})
	n := d.Neg()

	assert.Equal(t, ledger.Delta{Package: -1, Used: -1, Attended: -1}, n)
	assert.Equal(t, d, n.Neg(), "double negation restores the original")
}

func TestEffect_DrawsCredit(t *testing.T) {
	assert.True(t, ledger.Effect{Kind: ledger.KindIncluded, Attended: true}.DrawsCredit())
	assert.False(t, ledger.Effect{Kind: ledger.KindIncluded, Attended: false}.DrawsCredit(),
		"a no-show never holds the credit")
	assert.False(t, ledger.Effect{Kind: ledger.KindExtra, Attended: true}.DrawsCredit())
}

func TestKind_Valid(t *testing.T) {
	assert.True(t, ledger.KindIncluded.Valid())
	assert.True(t, ledger.KindExtra.Valid())
	assert.False(t, ledger.Kind("").Valid())
	assert.False(t, ledger.Kind("bonus").Valid())
}
