package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrometheusService(t *testing.T) {
	t.Run("services do not share a registry", func(t *testing.T) {
		a := NewPrometheusService()
		b := NewPrometheusService()
		require.NotSame(t, a.Registry(), b.Registry())

		a.SetENBs(3)
		assert.Equal(t, 3.0, testutil.ToFloat64(a.enbs))
		assert.Equal(t, 0.0, testutil.ToFloat64(b.enbs))
	})
}

func TestSaveMessages(t *testing.T) {
	s := NewPrometheusService()

	m := NewMessage("S1Setup", DirIncoming)
	m.Finish(ResultOK)
	s.SaveMessages(m)
	s.SaveMessages(m)

	m = NewMessage("S1Setup", DirIncoming)
	m.Finish(ResultRejected)
	s.SaveMessages(m)

	assert.Equal(t, 2.0, testutil.ToFloat64(s.msgCount.WithLabelValues("S1Setup", DirIncoming, ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.msgCount.WithLabelValues("S1Setup", DirIncoming, ResultRejected)))
	assert.Equal(t, 1, testutil.CollectAndCount(s.msgDuration))
}

func TestSaveAssociations(t *testing.T) {
	s := NewPrometheusService()

	a := NewAssociation()
	s.SaveAssociations(a)
	s.SaveAssociations(NewAssociation())
	assert.Equal(t, 2.0, testutil.ToFloat64(s.associations))

	a.Close()
	if a.Duration == 0 {
		a.Duration = 1e-9
	}
	s.SaveAssociations(a)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.associations))
	assert.Equal(t, 1, testutil.CollectAndCount(s.associationDuration))
}

func TestSaveAuthVector(t *testing.T) {
	s := NewPrometheusService()
	s.SaveAuthVector(ResultOK)
	s.SaveAuthVector(ResultDropped)
	s.SaveAuthVector(ResultOK)

	assert.Equal(t, 2.0, testutil.ToFloat64(s.authVectors.WithLabelValues(ResultOK)))
	assert.Equal(t, 2, testutil.CollectAndCount(s.authVectors))
}
