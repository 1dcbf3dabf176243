package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, enc *Encoder) Frame {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	tr := NewTransport(buf)
	require.NoError(t, tr.Send(enc))

	tr2 := NewTransport(buf)
	f, err := tr2.Recv()
	require.NoError(t, err)
	return f
}

func TestOpenRoundTrip(t *testing.T) {
	f := roundTrip(t, EncodeOpen("/x", ModeWrite))
	assert.Equal(t, KindOpen, f.Kind)
	assert.Equal(t, "/x", f.Path)
	assert.Equal(t, ModeWrite, f.Mode)
}

func TestCloseRoundTrip(t *testing.T) {
	f := roundTrip(t, EncodeClose("/y", ModeRead))
	assert.Equal(t, KindClose, f.Kind)
	assert.Equal(t, ModeRead, f.Mode)
}

func TestWriteRoundTrip(t *testing.T) {
	f := roundTrip(t, EncodeWrite("/x", []byte("hello")))
	assert.Equal(t, KindWrite, f.Kind)
	assert.Equal(t, "hello", string(f.Data))
}

func TestFlushRoundTrip(t *testing.T) {
	f := roundTrip(t, EncodeFlush("/x", []byte("abc")))
	assert.Equal(t, KindFlush, f.Kind)
	assert.Equal(t, "abc", string(f.Data))
}

func TestReadRoundTrip(t *testing.T) {
	f := roundTrip(t, EncodeRead("/x", 42))
	assert.Equal(t, KindRead, f.Kind)
	assert.EqualValues(t, 42, f.Len)
}

func TestReadRequestRoundTrip(t *testing.T) {
	f := roundTrip(t, EncodeReadRequest("/x", 100))
	assert.Equal(t, KindReadRequest, f.Kind)
	assert.EqualValues(t, 100, f.Len)
}

func TestSendSerializesInterleavedFrames(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	tr := NewTransport(buf)

	require.NoError(t, tr.Send(EncodeWrite("/a", []byte("111"))))
	require.NoError(t, tr.Send(EncodeWrite("/b", []byte("222"))))

	f1, err := tr.Recv()
	require.NoError(t, err)
	f2, err := tr.Recv()
	require.NoError(t, err)

	assert.Equal(t, "/a", f1.Path)
	assert.Equal(t, "/b", f2.Path)
}

func TestRecvShortFrameErrors(t *testing.T) {
	buf := bytes.NewBuffer([]byte{5, 0, 0, 0, 1, 2})
	tr := NewTransport(buf)
	_, err := tr.Recv()
	assert.Error(t, err)
}
