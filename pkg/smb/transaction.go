package smb

import (
	"context"
	"fmt"

	"github.com/ineffectivecoder/cifsgooser/internal/encoding"
	"github.com/ineffectivecoder/cifsgooser/pkg/debug"
)

// Transaction request defaults
const (
	DefaultMaxParams = 16
	DefaultMaxData   = 3000
	DefaultMaxSetup  = 20
)

// parameter word counts without setup words
const (
	transWords           = 14
	transSecondaryWords  = 8
	trans2SecondaryWords = 9
	transResponseWords   = 10

	// alignment slack reserved when sizing a fragment
	transSlack = 8
)

// Transaction is a TRANSACTION or TRANSACTION2 request.
type Transaction struct {
	// Name is the pipe or mailslot name; TRANSACTION2 ignores it.
	Name      string
	Setup     []uint16
	Params    []byte
	Data      []byte
	MaxParams uint16
	MaxData   uint16
	MaxSetup  uint8
	Flags     uint16
	Timeout   uint32
}

// TransactionReply is the reassembled response.
type TransactionReply struct {
	Setup  []uint16
	Params []byte
	Data   []byte
}

// SendTransaction sends tx as a TRANSACTION, splitting it into secondary
// requests when it does not fit one frame. The caller must read the reply
// with ReceiveTransaction; Transact does both under one lock hold.
func (s *Session) SendTransaction(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendTransactionLocked(ctx, CmdTransaction, tx)
}

// SendTransaction2 sends tx as a TRANSACTION2.
func (s *Session) SendTransaction2(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendTransactionLocked(ctx, CmdTransaction2, tx)
}

// ReceiveTransaction reads and reassembles a transaction response.
func (s *Session) ReceiveTransaction(ctx context.Context) (*TransactionReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receiveTransactionLocked()
}

// Transact sends tx with cmd (CmdTransaction or CmdTransaction2) and
// returns the reassembled reply.
func (s *Session) Transact(ctx context.Context, cmd Command, tx *Transaction) (*TransactionReply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply, err := s.transactLocked(ctx, cmd, tx)
	s.metrics.Transaction(cmd.String(), err)
	if err != nil {
		debug.Printf("smb: %s on %s failed: %v\n", cmd, s.name, err)
	}
	return reply, err
}

func (s *Session) transactLocked(ctx context.Context, cmd Command, tx *Transaction) (*TransactionReply, error) {
	if err := s.sendTransactionLocked(ctx, cmd, tx); err != nil {
		return nil, err
	}
	return s.receiveTransactionLocked()
}

// frameLimitLocked is the largest frame the server and our buffer accept.
func (s *Session) frameLimitLocked() int {
	limit := s.msg.Cap()
	if mb := int(s.neg.MaxBuffer); mb > 0 && mb < limit {
		limit = mb
	}
	return limit
}

func (s *Session) sendTransactionLocked(ctx context.Context, cmd Command, tx *Transaction) error {
	var secondary Command
	switch cmd {
	case CmdTransaction:
		secondary = CmdTransactionSecondary
	case CmdTransaction2:
		secondary = CmdTransaction2Secondary
	default:
		return fmt.Errorf("%s is not a transaction command", cmd)
	}
	if len(tx.Params) > 0xFFFF || len(tx.Data) > 0xFFFF {
		return protocolError("transaction payload exceeds 65535 bytes")
	}
	if err := s.setupMessageLocked(ctx, cmd); err != nil {
		return err
	}

	maxParams, maxData, maxSetup := tx.MaxParams, tx.MaxData, tx.MaxSetup
	if maxParams == 0 {
		maxParams = DefaultMaxParams
	}
	if maxData == 0 {
		maxData = DefaultMaxData
	}
	if maxSetup == 0 {
		maxSetup = DefaultMaxSetup
	}

	m := s.msg
	limit := s.frameLimitLocked()
	m.SetWordCount(transWords + len(tx.Setup))
	m.SetParamUint16(0, uint16(len(tx.Params)))
	m.SetParamUint16(2, uint16(len(tx.Data)))
	m.SetParamUint16(4, maxParams)
	m.SetParamUint16(6, maxData)
	m.SetParamByte(8, maxSetup)
	m.SetParamUint16(10, tx.Flags)
	m.SetParamUint32(12, tx.Timeout)
	m.SetParamByte(26, byte(len(tx.Setup)))
	for i, w := range tx.Setup {
		m.SetParamUint16(28+2*i, w)
	}

	buf := m.Buffer()
	off := m.ContentOffset()
	if cmd == CmdTransaction {
		off += buf.SetZtASCIIAt(off, tx.Name)
	} else {
		buf.SetByte(off, 0)
		off++
	}

	free := limit - off - transSlack
	if free <= 0 {
		return protocolError(fmt.Sprintf("server buffer of %d bytes cannot hold a %s header", limit, cmd))
	}
	pCount := min(len(tx.Params), free)
	dCount := min(len(tx.Data), free-pCount)
	pOff, dOff := placeFragment(buf, off, 2, tx.Params[:pCount], tx.Data[:dCount])

	m.SetParamUint16(18, uint16(pCount))
	m.SetParamUint16(20, uint16(pOff))
	m.SetParamUint16(22, uint16(dCount))
	m.SetParamUint16(24, uint16(dOff))
	m.SetByteCount(dOff + dCount - m.ContentOffset())

	if err := s.sendLocked(); err != nil {
		return err
	}
	if pCount == len(tx.Params) && dCount == len(tx.Data) {
		return nil
	}

	// the server acknowledges the primary before accepting secondaries
	if err := s.receiveLocked(); err != nil {
		return err
	}
	if err := m.Err(); err != nil {
		return err
	}

	pSent, dSent := pCount, dCount
	for pSent < len(tx.Params) || dSent < len(tx.Data) {
		s.setupSecondaryLocked(secondary)
		words := transSecondaryWords
		if secondary == CmdTransaction2Secondary {
			words = trans2SecondaryWords
		}
		m.SetWordCount(words)
		m.SetParamUint16(0, uint16(len(tx.Params)))
		m.SetParamUint16(2, uint16(len(tx.Data)))

		off := m.ContentOffset()
		free := limit - off - transSlack
		pc := min(len(tx.Params)-pSent, free)
		dc := min(len(tx.Data)-dSent, free-pc)
		if pc == 0 && dc == 0 {
			return protocolError("no room for transaction fragment")
		}
		pOff, dOff := placeFragment(buf, off, 4, tx.Params[pSent:pSent+pc], tx.Data[dSent:dSent+dc])

		m.SetParamUint16(4, uint16(pc))
		m.SetParamUint16(6, uint16(pOff))
		m.SetParamUint16(8, uint16(pSent))
		m.SetParamUint16(10, uint16(dc))
		m.SetParamUint16(12, uint16(dOff))
		m.SetParamUint16(14, uint16(dSent))
		if secondary == CmdTransaction2Secondary {
			m.SetParamUint16(16, 0xFFFF) // FID
		}
		m.SetByteCount(dOff + dc - m.ContentOffset())

		if err := s.sendLocked(); err != nil {
			return err
		}
		pSent += pc
		dSent += dc
		debug.Tracef("smb: %s sent params %d/%d data %d/%d", secondary, pSent, len(tx.Params), dSent, len(tx.Data))
	}
	return nil
}

// placeFragment writes params and data after off, each aligned to
// boundary, zeroing the pad bytes. It returns both offsets.
func placeFragment(buf *encoding.Buffer, off, boundary int, params, data []byte) (pOff, dOff int) {
	pOff = encoding.Align(off, boundary)
	clear(buf.Raw()[off:pOff])
	buf.SetBytesAt(pOff, params)

	end := pOff + len(params)
	dOff = encoding.Align(end, boundary)
	clear(buf.Raw()[end:dOff])
	buf.SetBytesAt(dOff, data)
	return pOff, dOff
}

func (s *Session) receiveTransactionLocked() (*TransactionReply, error) {
	m := s.msg
	var reply TransactionReply
	var pGot, dGot, totalP, totalD int
	first := true

	for {
		if err := s.receiveLocked(); err != nil {
			return nil, err
		}
		if err := m.Err(); err != nil {
			return nil, err
		}
		if m.WordCount() < transResponseWords {
			return nil, protocolError(fmt.Sprintf("%s response with %d parameter words", m.Command(), m.WordCount()))
		}

		pCount := int(m.ParamUint16(6))
		pOff := int(m.ParamUint16(8))
		pDisp := int(m.ParamUint16(10))
		dCount := int(m.ParamUint16(12))
		dOff := int(m.ParamUint16(14))
		dDisp := int(m.ParamUint16(16))

		// a fragment is checked against the totals announced before it; the
		// totals it carries may shrink and apply from here on
		if first {
			totalP = int(m.ParamUint16(0))
			totalD = int(m.ParamUint16(2))
			reply.Params = make([]byte, totalP)
			reply.Data = make([]byte, totalD)
			setupCount := int(m.ParamByte(18))
			if m.WordCount() < transResponseWords+setupCount {
				return nil, protocolError("transaction response setup words truncated")
			}
			for i := 0; i < setupCount; i++ {
				reply.Setup = append(reply.Setup, m.ParamUint16(20+2*i))
			}
			first = false
		}

		if pDisp+pCount > len(reply.Params) || dDisp+dCount > len(reply.Data) {
			return nil, protocolError(fmt.Sprintf("transaction fragment outside buffers: params %d+%d of %d, data %d+%d of %d",
				pDisp, pCount, len(reply.Params), dDisp, dCount, len(reply.Data)))
		}
		if pGot+pCount > totalP || dGot+dCount > totalD {
			return nil, protocolError(fmt.Sprintf("transaction exceeds totals: params %d+%d of %d, data %d+%d of %d",
				pGot, pCount, totalP, dGot, dCount, totalD))
		}
		if pOff+pCount > m.Size() || dOff+dCount > m.Size() {
			return nil, protocolError("transaction fragment offsets beyond frame")
		}

		copy(reply.Params[pDisp:], m.Buffer().BytesAt(pOff, pCount))
		copy(reply.Data[dDisp:], m.Buffer().BytesAt(dOff, dCount))
		pGot += pCount
		dGot += dCount

		newP, newD := int(m.ParamUint16(0)), int(m.ParamUint16(2))
		if newP > len(reply.Params) || newD > len(reply.Data) {
			return nil, protocolError(fmt.Sprintf("transaction totals grew to %d/%d from %d/%d",
				newP, newD, len(reply.Params), len(reply.Data)))
		}
		totalP, totalD = newP, newD

		if pGot >= totalP && dGot >= totalD {
			break
		}
	}

	reply.Params = reply.Params[:pGot]
	reply.Data = reply.Data[:dGot]
	return &reply, nil
}
