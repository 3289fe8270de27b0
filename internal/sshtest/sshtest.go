// Package sshtest runs an in-process SSH gateway that accepts password
// logins and forwards direct-tcpip channels, for tests of the tunnel
// path.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// Gateway is a running SSH server on 127.0.0.1.
type Gateway struct {
	Addr     string
	HostKey  ssh.PublicKey
	Password string

	ln net.Listener
	wg sync.WaitGroup

	mu       sync.Mutex
	forwards []string
}

// NewGateway starts a gateway that accepts any user with password.  It
// is closed by t.Cleanup.
func NewGateway(t testing.TB, password string) *Gateway {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, p []byte) (*ssh.Permissions, error) {
			if string(p) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	g := &Gateway{Addr: ln.Addr().String(), HostKey: signer.PublicKey(), Password: password, ln: ln}
	g.wg.Add(1)
	go g.serve(cfg)
	t.Cleanup(g.Close)
	return g
}

// Forwards lists the targets of direct-tcpip channels opened so far.
func (g *Gateway) Forwards() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.forwards...)
}

// Close stops accepting and waits for the accept loop.
func (g *Gateway) Close() {
	g.ln.Close()
	g.wg.Wait()
}

func (g *Gateway) serve(cfg *ssh.ServerConfig) {
	defer g.wg.Done()
	for {
		c, err := g.ln.Accept()
		if err != nil {
			return
		}
		go g.handle(c, cfg)
	}
}

func (g *Gateway) handle(c net.Conn, cfg *ssh.ServerConfig) {
	sc, chans, reqs, err := ssh.NewServerConn(c, cfg)
	if err != nil {
		c.Close()
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "direct-tcpip" {
			nc.Reject(ssh.UnknownChannelType, "only direct-tcpip")
			continue
		}
		var target struct {
			Host     string
			Port     uint32
			OrigHost string
			OrigPort uint32
		}
		if err := ssh.Unmarshal(nc.ExtraData(), &target); err != nil {
			nc.Reject(ssh.ConnectionFailed, "bad payload")
			continue
		}
		addr := net.JoinHostPort(target.Host, fmt.Sprint(target.Port))
		g.mu.Lock()
		g.forwards = append(g.forwards, addr)
		g.mu.Unlock()

		up, err := net.Dial("tcp", addr)
		if err != nil {
			nc.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}
		ch, chReqs, err := nc.Accept()
		if err != nil {
			up.Close()
			continue
		}
		go ssh.DiscardRequests(chReqs)
		go splice(ch, up)
	}
}

func splice(ch ssh.Channel, up net.Conn) {
	done := make(chan struct{}, 2)
	go func() {
		io.Copy(up, ch) //nolint:errcheck
		if tc, ok := up.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		done <- struct{}{}
	}()
	go func() {
		io.Copy(ch, up) //nolint:errcheck
		ch.CloseWrite()
		done <- struct{}{}
	}()
	<-done
	<-done
	ch.Close()
	up.Close()
}
