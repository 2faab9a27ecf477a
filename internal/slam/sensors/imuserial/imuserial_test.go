package imuserial

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type stringPorter struct {
	*strings.Reader
	closed bool
}

func (p *stringPorter) Close() error {
	p.closed = true
	return nil
}

func TestLineReaderParsesCSVSample(t *testing.T) {
	p := &stringPorter{Reader: strings.NewReader("1.0,2.0,3.0,0.1,0.2,0.3,10,20,30\n")}
	r := NewLineReader(p)

	s, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, 1.0, s.AngularRate.X)
	require.Equal(t, 3.0, s.AngularRate.Z)
	require.Equal(t, 30.0, s.Magnetometer.Z)

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)

	require.NoError(t, r.Close())
	require.True(t, p.closed)
}

func TestLineReaderRejectsMalformedLine(t *testing.T) {
	p := &stringPorter{Reader: strings.NewReader("1,2,3\n")}
	r := NewLineReader(p)
	_, err := r.Next()
	require.Error(t, err)
}
