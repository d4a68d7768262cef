package fixedpoint

import (
	"testing"

	"custody-vault/pkg/apperror"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRescale(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		from, to uint8
		want     string
	}{
		{"identity", "1234567", 6, 6, "1234567"},
		{"truncates lower digits", "1234567", 18, 6, "0"},
		{"scale down exact", "2000000000000000000", 18, 6, "2000000"},
		{"scale down truncating", "1999999999999", 18, 6, "1"},
		{"scale up", "5", 6, 18, "5000000000000000000"},
		{"price decimals to usd", "100000000000", 8, 6, "1000000000"},
		{"zero", "0", 0, 18, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rescale(MustParse(tt.amount), tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, String(got))
		})
	}
}

func TestRescale_RoundTripIsLossy(t *testing.T) {
	x := MustParse("1234567890123456789")

	down, err := Rescale(x, 18, 6)
	require.NoError(t, err)
	back, err := Rescale(down, 6, 18)
	require.NoError(t, err)

	assert.Equal(t, "1234567000000000000", String(back))
	assert.False(t, back.Eq(x))
}

func TestRescale_DoesNotAliasInput(t *testing.T) {
	x := uint256.NewInt(42)
	got, err := Rescale(x, 6, 6)
	require.NoError(t, err)

	got.SetUint64(7)
	assert.Equal(t, uint64(42), x.Uint64())
}

func TestRescale_Overflow(t *testing.T) {
	huge := MustParse("115792089237316195423570985008687907853269984665640564039457584007913129639935")

	_, err := Rescale(huge, 0, 1)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, "SYS_004"))

	_, err = Rescale(uint256.NewInt(1), 0, 78)
	assert.True(t, apperror.HasCode(err, "SYS_004"))
}

func TestPow10(t *testing.T) {
	p, err := Pow10(0)
	require.NoError(t, err)
	assert.Equal(t, "1", String(p))

	p, err = Pow10(18)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", String(p))

	_, err = Pow10(77)
	assert.NoError(t, err)
	_, err = Pow10(78)
	assert.Error(t, err)
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := Sub(uint256.NewInt(1), uint256.NewInt(2))
	assert.True(t, apperror.HasCode(err, "SYS_004"))

	sum, err := Add(uint256.NewInt(1), uint256.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), sum.Uint64())

	maxUint := new(uint256.Int).SetAllOne()
	_, err = Add(maxUint, uint256.NewInt(1))
	assert.True(t, apperror.HasCode(err, "SYS_004"))
	_, err = Mul(maxUint, uint256.NewInt(2))
	assert.True(t, apperror.HasCode(err, "SYS_004"))
}

func TestParse(t *testing.T) {
	v, err := Parse("500000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", String(v))

	_, err = Parse("-1")
	assert.Error(t, err)
	_, err = Parse("1.5")
	assert.Error(t, err)
	_, err = Parse("abc")
	assert.Error(t, err)
	_, err = Parse("115792089237316195423570985008687907853269984665640564039457584007913129639936")
	assert.Error(t, err)
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "1000.000000", FormatUnits(uint256.NewInt(1_000_000_000), USDDecimals))
	assert.Equal(t, "0.000001", FormatUnits(uint256.NewInt(1), USDDecimals))
	assert.Equal(t, "0.000000", FormatUnits(nil, USDDecimals))
	assert.Equal(t, "0.500000000000000000", FormatUnits(MustParse("500000000000000000"), NativeDecimals))
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits("1000", USDDecimals)
	require.NoError(t, err)
	assert.Equal(t, "1000000000", String(v))

	v, err = ParseUnits("0.1", NativeDecimals)
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", String(v))

	_, err = ParseUnits("0.0000001", USDDecimals)
	assert.Error(t, err)
	_, err = ParseUnits("-5", USDDecimals)
	assert.Error(t, err)
	_, err = ParseUnits("ten", USDDecimals)
	assert.Error(t, err)
}

func TestString_Nil(t *testing.T) {
	assert.Equal(t, "0", String(nil))
}
