package smb

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineffectivecoder/cifsgooser/pkg/metrics"
)

const lanmanPipe = `\PIPE\LANMAN`

// transServer installs handlers that reassemble requests for cmd and its
// secondary, then answer with params and data split into chunk sized
// frames.
func transServer(f *fakeServer, cmd, secondary Command, params, data []byte, chunk int) *transAssembler {
	a := &transAssembler{}
	h := func(req *Message) []*Message {
		done := a.add(req)
		if !done {
			if req.Command() == cmd {
				return []*Message{reply(req, 0)}
			}
			return nil
		}
		return transReplies(req, cmd, params, data, chunk)
	}
	f.handle(cmd, h)
	f.handle(secondary, h)
	return a
}

func connectedSession(t *testing.T, f *fakeServer, o negotiateOpts, opts Options) *Session {
	t.Helper()
	f.standard(o)
	s := newTestSession(t, f, nil, opts)
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func TestTransactSingleFrame(t *testing.T) {
	f := newFakeServer(t)
	m := metrics.New(nil)
	s := connectedSession(t, f, defaultNegotiate(), Options{Metrics: m})
	a := transServer(f, CmdTransaction, CmdTransactionSecondary, []byte{0, 0, 1, 0}, []byte("share data"), 1000)

	reply, err := s.Transact(context.Background(), CmdTransaction, &Transaction{
		Name:   lanmanPipe,
		Params: []byte("WrLeh\x00B13BWz\x00"),
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 1, 0}, reply.Params)
	assert.Equal(t, []byte("share data"), reply.Data)
	assert.Empty(t, reply.Setup)

	assert.Equal(t, lanmanPipe, a.name)
	assert.Equal(t, []byte("WrLeh\x00B13BWz\x00"), a.params)

	reqs := f.received(CmdTransaction)
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, transWords, req.WordCount())
	assert.Equal(t, uint16(DefaultMaxParams), req.ParamUint16(4))
	assert.Equal(t, uint16(DefaultMaxData), req.ParamUint16(6))
	assert.Equal(t, byte(DefaultMaxSetup), req.ParamByte(8))
	assert.Zero(t, req.ParamUint16(20)%2)
	assert.Empty(t, f.received(CmdTransactionSecondary))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("TRANSACTION", "ok")))
}

func TestTransactFragments(t *testing.T) {
	f := newFakeServer(t)
	o := defaultNegotiate()
	o.maxBuffer = 1024
	s := connectedSession(t, f, o, Options{})

	params := pattern(300, 1)
	data := pattern(2500, 2)
	replyParams := pattern(100, 3)
	replyData := pattern(2000, 4)
	a := transServer(f, CmdTransaction, CmdTransactionSecondary, replyParams, replyData, 700)

	reply, err := s.Transact(context.Background(), CmdTransaction, &Transaction{
		Name:      lanmanPipe,
		Setup:     []uint16{0x0026, 0x1234},
		Params:    params,
		Data:      data,
		MaxParams: 200,
		MaxData:   4000,
	})
	require.NoError(t, err)
	assert.Equal(t, replyParams, reply.Params)
	assert.Equal(t, replyData, reply.Data)

	assert.Equal(t, params, a.params)
	assert.Equal(t, data, a.data)
	assert.Equal(t, []uint16{0x0026, 0x1234}, a.setup)

	primary := f.received(CmdTransaction)
	require.Len(t, primary, 1)
	assert.LessOrEqual(t, primary[0].Size(), 1024)
	secondaries := f.received(CmdTransactionSecondary)
	require.Len(t, secondaries, 2)
	for _, sec := range secondaries {
		assert.Equal(t, transSecondaryWords, sec.WordCount())
		assert.Equal(t, primary[0].MID(), sec.MID())
		assert.LessOrEqual(t, sec.Size(), 1024)
		assert.Zero(t, sec.ParamUint16(12)%4)
	}
}

func TestTransact2Secondary(t *testing.T) {
	f := newFakeServer(t)
	o := defaultNegotiate()
	o.maxBuffer = 512
	s := connectedSession(t, f, o, Options{})

	data := pattern(1200, 9)
	a := transServer(f, CmdTransaction2, CmdTransaction2Secondary, []byte{1, 2}, nil, 400)

	reply, err := s.Transact(context.Background(), CmdTransaction2, &Transaction{
		Setup: []uint16{0x0001},
		Data:  data,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, reply.Params)
	assert.Empty(t, reply.Data)
	assert.Equal(t, data, a.data)

	primary := f.received(CmdTransaction2)
	require.Len(t, primary, 1)
	assert.Equal(t, byte(0), primary[0].Content()[0])

	secondaries := f.received(CmdTransaction2Secondary)
	require.NotEmpty(t, secondaries)
	for _, sec := range secondaries {
		assert.Equal(t, trans2SecondaryWords, sec.WordCount())
		assert.Equal(t, uint16(0xFFFF), sec.ParamUint16(16))
	}
}

func TestTransactSendReceiveSplit(t *testing.T) {
	f := newFakeServer(t)
	s := connectedSession(t, f, defaultNegotiate(), Options{})
	transServer(f, CmdTransaction, CmdTransactionSecondary, []byte{0xEA, 0}, pattern(40, 5), 1000)

	require.NoError(t, s.SendTransaction(context.Background(), &Transaction{Name: lanmanPipe, Params: []byte{1}}))
	reply, err := s.ReceiveTransaction(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEA, 0}, reply.Params)
	assert.Equal(t, pattern(40, 5), reply.Data)
}

func TestTransactInterimError(t *testing.T) {
	f := newFakeServer(t)
	o := defaultNegotiate()
	o.maxBuffer = 512
	s := connectedSession(t, f, o, Options{})
	f.handle(CmdTransaction, func(req *Message) []*Message {
		return []*Message{errorReply(req, ErrSRV, SRVAccess)}
	})

	_, err := s.Transact(context.Background(), CmdTransaction, &Transaction{Name: lanmanPipe, Data: pattern(2000, 0)})
	se, ok := IsServerError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, SRVAccess, se.Code)
	assert.Empty(t, f.received(CmdTransactionSecondary))
}

func TestTransactRejectsBadFragments(t *testing.T) {
	tests := []struct {
		name   string
		frames func(req *Message) []*Message
	}{
		{"beyond totals", func(req *Message) []*Message {
			ms := transReplies(req, CmdTransaction, pattern(20, 0), nil, 100)
			ms[0].SetParamUint16(0, 10)
			return ms
		}},
		{"displacement overflow", func(req *Message) []*Message {
			ms := transReplies(req, CmdTransaction, pattern(20, 0), nil, 100)
			ms[0].SetParamUint16(10, 15)
			return ms
		}},
		{"totals grow", func(req *Message) []*Message {
			ms := transReplies(req, CmdTransaction, pattern(20, 0), pattern(20, 0), 20)
			ms[1].SetParamUint16(2, 40)
			return ms
		}},
		{"offset beyond frame", func(req *Message) []*Message {
			ms := transReplies(req, CmdTransaction, pattern(20, 0), nil, 100)
			ms[0].SetParamUint16(8, 4000)
			return ms
		}},
		{"short words", func(req *Message) []*Message {
			return []*Message{reply(req, 4)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeServer(t)
			m := metrics.New(nil)
			s := connectedSession(t, f, defaultNegotiate(), Options{Metrics: m})
			f.handle(CmdTransaction, tt.frames)

			_, err := s.Transact(context.Background(), CmdTransaction, &Transaction{Name: lanmanPipe})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrProtocol), "got %v", err)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("TRANSACTION", "error")))
		})
	}
}

func TestTransactTotalsShrink(t *testing.T) {
	f := newFakeServer(t)
	m := metrics.New(nil)
	s := connectedSession(t, f, defaultNegotiate(), Options{Metrics: m})
	data := pattern(80, 3)
	f.handle(CmdTransaction, func(req *Message) []*Message {
		ms := transReplies(req, CmdTransaction, nil, data, 60)
		ms[0].SetParamUint16(2, 100)
		ms[1].SetParamUint16(2, 70)
		return ms
	})

	reply, err := s.Transact(context.Background(), CmdTransaction, &Transaction{Name: lanmanPipe})
	require.NoError(t, err)
	assert.Empty(t, reply.Params)
	assert.Equal(t, data, reply.Data)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("TRANSACTION", "ok")))

	// the session stays usable
	out, err := s.Echo(context.Background(), "next")
	require.NoError(t, err)
	assert.Equal(t, "next", out)
}

func TestTransactRejectsCommand(t *testing.T) {
	f := newFakeServer(t)
	s := connectedSession(t, f, defaultNegotiate(), Options{})
	_, err := s.Transact(context.Background(), CmdEcho, &Transaction{})
	assert.Error(t, err)
}
