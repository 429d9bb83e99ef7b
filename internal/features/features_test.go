package features

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) (*Schema, *Registry) {
	t.Helper()
	zero := 0.0
	schema, err := NewSchema([]Feature{
		{Name: "duration", Kind: KindNumeric},
		{Name: "proto", Kind: KindCategorical, Lowercase: true},
		{Name: "conn_state", Kind: KindCategorical},
		{Name: "dns_qtype", Kind: KindNumeric, Default: &zero},
		{Name: "src_bytes", Kind: KindNumeric},
	})
	require.NoError(t, err)

	reg := NewRegistry()
	reg.Add(FitEncoder("proto", []string{"udp", "tcp", "icmp", "tcp"}))
	reg.Add(FitEncoder("conn_state", []string{"SF", "S0", "REJ", "SF"}))
	return schema, reg
}

func TestFitEncoder_SortedCodes(t *testing.T) {
	enc := FitEncoder("proto", []string{"udp", "tcp", "icmp", "udp"})

	assert.Equal(t, []string{"icmp", "tcp", "udp"}, enc.Classes)
	for want, class := range enc.Classes {
		code, err := enc.Lookup(class)
		require.NoError(t, err)
		assert.Equal(t, want, code)
	}
}

func TestEncoder_UnseenFallsBackToSentinel(t *testing.T) {
	enc := FitEncoder("service", []string{"dns", "http", "-"})

	code, fallback := enc.Encode("gopher")
	assert.True(t, fallback)
	assert.Equal(t, SentinelCode, code)

	_, err := enc.Lookup("gopher")
	assert.True(t, errors.Is(err, ErrUnseenCategory))

	code, fallback = enc.Encode("http")
	assert.False(t, fallback)
	assert.Equal(t, 2, code)
}

func TestEncoder_JSONKeepsCodes(t *testing.T) {
	enc := FitEncoder("conn_state", []string{"SF", "S0", "REJ", "OTH"})
	data, err := json.Marshal(enc)
	require.NoError(t, err)

	var loaded Encoder
	require.NoError(t, json.Unmarshal(data, &loaded))
	for _, class := range enc.Classes {
		want, _ := enc.Encode(class)
		got, fallback := loaded.Encode(class)
		assert.False(t, fallback)
		assert.Equal(t, want, got)
	}
}

func TestEncoder_RejectsUnsortedVocabulary(t *testing.T) {
	var enc Encoder
	err := json.Unmarshal([]byte(`{"feature":"proto","classes":["udp","tcp"]}`), &enc)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"feature":"proto","classes":[]}`), &enc)
	assert.Error(t, err)
}

func TestNewSchema_RejectsDuplicates(t *testing.T) {
	_, err := NewSchema([]Feature{
		{Name: "duration", Kind: KindNumeric},
		{Name: "duration", Kind: KindNumeric},
	})
	assert.Error(t, err)

	_, err = NewSchema(nil)
	assert.Error(t, err)
}

func TestSchema_Required(t *testing.T) {
	schema, _ := testSchema(t)
	assert.Equal(t, []string{"duration", "proto", "conn_state", "src_bytes"}, schema.Required())
	assert.Equal(t, []string{"proto", "conn_state"}, schema.Categorical())
}

func TestBuildVector_SchemaOrder(t *testing.T) {
	schema, reg := testSchema(t)

	// Insert in a different order on every run; map iteration is random.
	for i := 0; i < 20; i++ {
		rec := Fields{
			"src_bytes":  "350",
			"conn_state": "SF",
			"proto":      "TCP",
			"duration":   "2.5",
			"extra":      "ignored",
		}
		vec, err := BuildVector(rec, schema, reg)
		require.NoError(t, err)
		assert.Equal(t, []float64{2.5, 1, 2, 0, 350}, vec.Values)
		assert.Empty(t, vec.Fallbacks)
		assert.Equal(t, []string{"dns_qtype"}, vec.Defaulted)
	}
}

func TestBuildVector_UnseenCategoryIsFlagged(t *testing.T) {
	schema, reg := testSchema(t)

	vec, err := BuildVector(Fields{
		"duration": "1", "proto": "sctp", "conn_state": "SF", "src_bytes": "0",
	}, schema, reg)
	require.NoError(t, err)
	assert.Equal(t, float64(SentinelCode), vec.Values[1])
	assert.Equal(t, []string{"proto"}, vec.Fallbacks)
}

func TestBuildVector_MissingFeature(t *testing.T) {
	schema, reg := testSchema(t)

	_, err := BuildVector(Fields{
		"proto": "tcp", "conn_state": "SF", "src_bytes": "1", "duration": "  ",
	}, schema, reg)

	var missing *MissingFeatureError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "duration", missing.Feature)
}

func TestBuildVector_InvalidNumeric(t *testing.T) {
	schema, reg := testSchema(t)

	for _, bad := range []string{"abc", "NaN", "+Inf"} {
		_, err := BuildVector(Fields{
			"duration": "1", "proto": "tcp", "conn_state": "SF", "src_bytes": bad,
		}, schema, reg)

		var invalid *InvalidInputError
		require.True(t, errors.As(err, &invalid), bad)
		assert.Equal(t, "src_bytes", invalid.Feature)
		assert.Equal(t, bad, invalid.Value)
	}
}

func TestFitScaler_PopulationStd(t *testing.T) {
	s, err := FitScaler([][]float64{
		{1, 10, 5},
		{3, 10, 5},
		{5, 10, 5},
		{7, 10, 5},
	})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{4, 10, 5}, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(5), s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1])

	out := s.Transform([]float64{4, 10, 6})
	assert.InDeltaSlice(t, []float64{0, 0, 1}, out, 1e-12)
}

func TestScaler_TransformPanicsOnLengthMismatch(t *testing.T) {
	s, err := FitScaler([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	assert.Panics(t, func() { s.Transform([]float64{1, 2, 3}) })
}

func TestFitScaler_RaggedMatrix(t *testing.T) {
	_, err := FitScaler([][]float64{{1, 2}, {3}})
	assert.Error(t, err)
}
