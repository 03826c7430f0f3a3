package handler

import (
	"net"
	"time"

	"sniproxy/internal/errs"
	"sniproxy/internal/http2authority"
	"sniproxy/internal/httpheader"
)

// readAtLeast accumulates bytes from conn until at least n bytes have
// been read, the deadline passes, or the peer closes. Whatever was read
// is returned even on error, so the caller can still replay it.
func readAtLeast(conn net.Conn, n int, deadline time.Time) ([]byte, error) {
	return readUntil(conn, deadline, maxClientHelloBytes, func(buf []byte) (bool, error) {
		return len(buf) >= n, nil
	}, nil)
}

// readClientHello grows buf (already holding the peeked prefix) until a
// full TLS record is available, per the record's declared length (spec
// §4.G: "read up to 16 KiB of record with a ClientHello timeout").
func readClientHello(conn net.Conn, buf []byte, deadline time.Time) ([]byte, error) {
	return readUntil(conn, deadline, maxClientHelloBytes, func(b []byte) (bool, error) {
		if len(b) < 5 {
			return false, nil
		}
		recordLen := int(b[3])<<8 | int(b[4])
		return len(b) >= 5+recordLen, nil
	}, buf)
}

// readH2Authority grows buf until the preface plus one full HEADERS
// frame is available.
func readH2Authority(conn net.Conn, buf []byte, deadline time.Time) ([]byte, error) {
	prefaceLen := len(http2authority.Preface)
	return readUntil(conn, deadline, maxClientHelloBytes, func(b []byte) (bool, error) {
		if len(b) < prefaceLen+9 {
			return false, nil
		}
		fh, err := http2authority.ReadFrameHeader(b[prefaceLen:])
		if err != nil {
			return false, err
		}
		return len(b) >= prefaceLen+9+fh.Length, nil
	}, buf)
}

// readHeaders grows buf until the HTTP header block terminator is found.
func readHeaders(conn net.Conn, buf []byte, deadline time.Time) ([]byte, error) {
	return readUntil(conn, deadline, maxHeaderBytes, func(b []byte) (bool, error) {
		_, err := httpheader.FindHeadersEnd(b, maxHeaderBytes)
		if err == nil {
			return true, nil
		}
		if errs.KindOf(err) == errs.KindHeadersTooLong && len(b) >= maxHeaderBytes {
			return false, err
		}
		return false, nil
	}, buf)
}

// readUntil accumulates reads from conn into (possibly pre-seeded)
// initial, calling complete after every read. It stops when complete
// reports true or an error, or when max bytes have been buffered without
// satisfaction, or the deadline/EOF is hit. The accumulated bytes are
// always returned alongside the final error, so the caller can replay
// whatever was consumed.
func readUntil(conn net.Conn, deadline time.Time, max int, complete func([]byte) (bool, error), initial []byte) ([]byte, error) {
	buf := append([]byte(nil), initial...)

	if ok, err := complete(buf); err != nil {
		return buf, err
	} else if ok {
		return buf, nil
	}

	chunk := make([]byte, 4096)
	for {
		if time.Now().After(deadline) {
			return buf, errs.New("handler.read", errs.KindClientHelloTimeout)
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if ok, cerr := complete(buf); cerr != nil {
				return buf, cerr
			} else if ok {
				return buf, nil
			}
		}
		if err != nil {
			return buf, errs.Wrap("handler.read", errs.KindClientHelloTimeout, err)
		}
		if len(buf) >= max {
			return buf, errs.New("handler.read", errs.KindHeadersTooLong)
		}
	}
}
