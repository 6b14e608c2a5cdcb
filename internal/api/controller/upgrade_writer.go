package controller

import (
	"bufio"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// upgradeWriter hands gin's response to a websocket handshake. gin refuses to hijack a
// response whose header was already flushed, so the 101 is held back and written onto the
// hijacked connection instead. It deliberately has no WriteHeaderNow.
type upgradeWriter struct {
	w         gin.ResponseWriter
	switching bool
}

func newUpgradeWriter(w gin.ResponseWriter) *upgradeWriter {
	return &upgradeWriter{w: w}
}

func (u *upgradeWriter) Header() http.Header {
	return u.w.Header()
}

func (u *upgradeWriter) WriteHeader(code int) {
	if code == http.StatusSwitchingProtocols {
		u.switching = true
		return
	}
	u.w.WriteHeader(code)
}

func (u *upgradeWriter) Write(b []byte) (int, error) {
	return u.w.Write(b)
}

func (u *upgradeWriter) Flush() {
	u.w.Flush()
}

func (u *upgradeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := u.w.Hijack()
	if err != nil {
		return nil, nil, err
	}
	if !u.switching {
		return conn, brw, nil
	}

	if _, err := fmt.Fprintf(brw, "HTTP/1.1 %d %s\r\n", http.StatusSwitchingProtocols, http.StatusText(http.StatusSwitchingProtocols)); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := u.w.Header().Write(brw); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if _, err := brw.WriteString("\r\n"); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := brw.Flush(); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, brw, nil
}
