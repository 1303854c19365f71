package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEther(t *testing.T) {
	oneEther, _ := new(big.Int).SetString("1000000000000000000", 10)

	tests := []struct {
		in      string
		want    *big.Int
		wantErr bool
	}{
		{in: "", want: big.NewInt(0)},
		{in: "0", want: big.NewInt(0)},
		{in: "1", want: oneEther},
		{in: "0.000000000000000001", want: big.NewInt(1)},
		{in: "1.5", want: new(big.Int).Add(oneEther, new(big.Int).Div(oneEther, big.NewInt(2)))},
		{in: "0.0000000000000000001", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "NaN", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEther(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, tt.want.Cmp(got), "got %s", got)
		})
	}
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "0", FormatEther(nil))
	assert.Equal(t, "0.000000000000000001", FormatEther(big.NewInt(1)))

	wei, err := ParseEther("2.25")
	require.NoError(t, err)
	assert.Equal(t, "2.25", FormatEther(wei))
}

func TestParseWei(t *testing.T) {
	v, err := ParseWei("12345")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), v.Int64())

	_, err = ParseWei("-1")
	require.Error(t, err)
	_, err = ParseWei("1.5")
	require.Error(t, err)
}
