package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎语音 websocket 二进制帧：4 字节头 + 可选序号/事件 + 4 字节长度 + payload

const protocolVersion = 0b0001

type frameType uint8

const (
	frameFullClient  frameType = 0b0001
	frameAudioClient frameType = 0b0010
	frameFullServer  frameType = 0b1001
	frameAudioServer frameType = 0b1011
	frameError       frameType = 0b1111
)

type frameFlags uint8

const (
	flagNoSequence   frameFlags = 0b0000
	flagSequence     frameFlags = 0b0001
	flagLastNoSeq    frameFlags = 0b0010
	flagLastSequence frameFlags = 0b0011
	flagWithEvent    frameFlags = 0b0100
)

type serialization uint8

const (
	serialRaw  serialization = 0b0000
	serialJSON serialization = 0b0001
)

type compression uint8

const (
	compressNone compression = 0b0000
	compressGzip compression = 0b0001
)

const (
	eventStartConnection    int32 = 1
	eventFinishConnection   int32 = 2
	eventConnectionStarted  int32 = 50
	eventConnectionFailed   int32 = 51
	eventConnectionFinished int32 = 52
	eventSessionFinished    int32 = 152
)

type frame struct {
	kind      frameType
	flags     frameFlags
	serial    serialization
	compress  compression
	sequence  int32
	event     int32
	sessionID string
	connectID string
	errorCode uint32
	payload   []byte // 未压缩的内容
}

func (f *frame) hasSequence() bool {
	switch f.flags & 0b0011 {
	case flagSequence, flagLastSequence:
		return true
	}
	return false
}

func (f *frame) hasEvent() bool {
	return f.flags&flagWithEvent == flagWithEvent
}

// last reports whether the frame closes the stream.
func (f *frame) last() bool {
	switch f.flags & 0b0011 {
	case flagLastNoSeq, flagLastSequence:
		return true
	}
	return false
}

func (f *frame) finished() bool {
	return f.last() || (f.hasEvent() && f.event == eventSessionFinished)
}

func (f *frame) marshal() ([]byte, error) {
	payload := f.payload
	if f.compress == compressGzip {
		var err error
		if payload, err = gzipBytes(payload); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, 0, 16+len(payload))
	buf = append(buf,
		protocolVersion<<4|0b0001,
		uint8(f.kind)<<4|uint8(f.flags),
		uint8(f.serial)<<4|uint8(f.compress),
		0x00,
	)
	if f.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.sequence))
	}
	if f.hasEvent() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.event))
		if !eventWithoutSession(f.event) {
			buf = appendSized(buf, f.sessionID)
		}
		if eventWithConnect(f.event) {
			buf = appendSized(buf, f.connectID)
		}
	}
	if f.kind == frameError {
		buf = binary.BigEndian.AppendUint32(buf, f.errorCode)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	return append(buf, payload...), nil
}

func unmarshalFrame(data []byte) (*frame, error) {
	r := bytes.NewReader(data)

	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if version := head[0] >> 4; version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := r.Seek(int64(extra), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("failed to skip extended header: %w", err)
		}
	}

	f := &frame{
		kind:     frameType(head[1] >> 4),
		flags:    frameFlags(head[1] & 0x0F),
		serial:   serialization(head[2] >> 4),
		compress: compression(head[2] & 0x0F),
	}

	var err error
	if f.hasSequence() {
		var seq uint32
		if seq, err = readUint32(r); err != nil {
			return nil, fmt.Errorf("failed to read sequence: %w", err)
		}
		f.sequence = int32(seq)
	}
	if f.hasEvent() {
		var event uint32
		if event, err = readUint32(r); err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		f.event = int32(event)
		if !eventWithoutSession(f.event) {
			if f.sessionID, err = readSized(r); err != nil {
				return nil, fmt.Errorf("failed to read session id: %w", err)
			}
		}
		if eventWithConnect(f.event) {
			if f.connectID, err = readSized(r); err != nil {
				return nil, fmt.Errorf("failed to read connect id: %w", err)
			}
		}
	}
	if f.kind == frameError {
		if f.errorCode, err = readUint32(r); err != nil {
			return nil, fmt.Errorf("failed to read error code: %w", err)
		}
	}

	size, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload size: %w", err)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read payload (expected %d bytes): %w", size, err)
	}
	if f.compress == compressGzip && len(payload) > 0 {
		if payload, err = gunzipBytes(payload); err != nil {
			return nil, err
		}
	}
	f.payload = payload
	return f, nil
}

func eventWithoutSession(event int32) bool {
	switch event {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func eventWithConnect(event int32) bool {
	switch event {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func appendSized(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readSized(r io.Reader) (string, error) {
	size, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return out, nil
}
