package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRangeNoHeaderServesWhole(t *testing.T) {
	_, ok, sat := ParseRange("", 1000)
	assert.False(t, ok)
	assert.True(t, sat)
}

func TestParseRangeAToB(t *testing.T) {
	r, ok, sat := ParseRange("bytes=10-20", 1000)
	assert.True(t, ok)
	assert.True(t, sat)
	assert.Equal(t, Range{Start: 10, End: 20}, r)
}

func TestParseRangeAToEnd(t *testing.T) {
	r, ok, sat := ParseRange("bytes=990-", 1000)
	assert.True(t, ok)
	assert.True(t, sat)
	assert.Equal(t, Range{Start: 990, End: 999}, r)
}

func TestParseRangeSuffix(t *testing.T) {
	r, ok, sat := ParseRange("bytes=-10", 1000)
	assert.True(t, ok)
	assert.True(t, sat)
	assert.Equal(t, Range{Start: 990, End: 999}, r)
}

func TestParseRangeSuffixLargerThanSizeClampsToWhole(t *testing.T) {
	r, ok, sat := ParseRange("bytes=-5000", 1000)
	assert.True(t, ok)
	assert.True(t, sat)
	assert.Equal(t, Range{Start: 0, End: 999}, r)
}

func TestParseRangeSuffixZeroIsMalformed(t *testing.T) {
	_, ok, sat := ParseRange("bytes=-0", 1000)
	assert.False(t, ok)
	assert.True(t, sat)
}

func TestParseRangeEndClampsToSizeMinusOne(t *testing.T) {
	r, ok, sat := ParseRange("bytes=10-999999", 1000)
	assert.True(t, ok)
	assert.True(t, sat)
	assert.Equal(t, Range{Start: 10, End: 999}, r)
}

func TestParseRangeLastByteSingleByte206(t *testing.T) {
	r, ok, sat := ParseRange("bytes=999-999", 1000)
	assert.True(t, ok)
	assert.True(t, sat)
	assert.Equal(t, Range{Start: 999, End: 999}, r)
}

func TestParseRangeStartGreaterThanEndIsMalformed(t *testing.T) {
	_, ok, sat := ParseRange("bytes=20-10", 1000)
	assert.False(t, ok)
	assert.True(t, sat)
}

func TestParseRangeStartAtOrBeyondSizeIsUnsatisfiable(t *testing.T) {
	_, ok, sat := ParseRange("bytes=1000-", 1000)
	assert.False(t, ok)
	assert.False(t, sat)

	_, ok, sat = ParseRange("bytes=5000-6000", 1000)
	assert.False(t, ok)
	assert.False(t, sat)
}

func TestParseRangeNegativeStartIsMalformed(t *testing.T) {
	_, ok, sat := ParseRange("bytes=-1-10", 1000)
	assert.False(t, ok)
	assert.True(t, sat)
}

func TestParseRangeNonNumericIsMalformed(t *testing.T) {
	_, ok, sat := ParseRange("bytes=abc-10", 1000)
	assert.False(t, ok)
	assert.True(t, sat)
}

func TestParseRangeWrongUnitIsMalformed(t *testing.T) {
	_, ok, sat := ParseRange("items=0-10", 1000)
	assert.False(t, ok)
	assert.True(t, sat)
}

func TestParseRangeMultiRangeIsMalformed(t *testing.T) {
	_, ok, sat := ParseRange("bytes=0-10,20-30", 1000)
	assert.False(t, ok)
	assert.True(t, sat)
}

func TestParseRangeEmptyBothSidesIsMalformed(t *testing.T) {
	_, ok, sat := ParseRange("bytes=-", 1000)
	assert.False(t, ok)
	assert.True(t, sat)
}
