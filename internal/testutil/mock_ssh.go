package testutil

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

// MockSSHServer provides a mock SSH server for testing.
type MockSSHServer struct {
	t          *testing.T
	listener   net.Listener
	config     *ssh.ServerConfig
	handlers   map[string]ChannelHandler
	mu         sync.Mutex
	running    bool
	stopCh     chan struct{}
	connections []ssh.Conn
}

// ChannelHandler handles a specific channel type.
type ChannelHandler func(channel ssh.Channel, requests <-chan *ssh.Request)

// NewMockSSHServer creates a new mock SSH server.
func NewMockSSHServer(t *testing.T) *MockSSHServer {
	privateKey := generateTestPrivateKey(t)
	
	config := &ssh.ServerConfig{
		NoClientAuth: true,
	}
	config.AddHostKey(privateKey)
	
	return &MockSSHServer{
		t:        t,
		config:   config,
		handlers: make(map[string]ChannelHandler),
		stopCh:   make(chan struct{}),
	}
}

// AddHandler adds a channel handler for a specific channel type.
func (s *MockSSHServer) AddHandler(channelType string, handler ChannelHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[channelType] = handler
}

// Start starts the mock SSH server.
func (s *MockSSHServer) Start() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	
	s.listener = listener
	s.running = true
	
	go s.acceptConnections()
	
	return listener.Addr().String(), nil
}

// Stop stops the mock SSH server.
func (s *MockSSHServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	
	if !s.running {
		return
	}
	
	s.running = false
	close(s.stopCh)
	
	if s.listener != nil {
		s.listener.Close()
	}
	
	for _, conn := range s.connections {
		conn.Close()
	}
}

func (s *MockSSHServer) acceptConnections() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running {
				return
			}
			s.t.Logf("error accepting connection: %v", err)
			continue
		}
		
		go s.handleConnection(conn)
	}
}

func (s *MockSSHServer) handleConnection(netConn net.Conn) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		s.t.Logf("error creating SSH connection: %v", err)
		netConn.Close()
		return
	}
	
	s.mu.Lock()
	s.connections = append(s.connections, sshConn)
	s.mu.Unlock()
	
	go ssh.DiscardRequests(reqs)
	
	for newChannel := range chans {
		s.mu.Lock()
		handler, ok := s.handlers[newChannel.ChannelType()]
		s.mu.Unlock()
		
		if !ok {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		
		channel, requests, err := newChannel.Accept()
		if err != nil {
			s.t.Logf("error accepting channel: %v", err)
			continue
		}
		
		go handler(channel, requests)
	}
}

// generateTestPrivateKey generates a fresh, throwaway host key for the
// mock server's lifetime rather than embedding static key material in the
// repository.
func generateTestPrivateKey(t *testing.T) ssh.Signer {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate mock server host key: %v", err)
	}
	signer, err := ssh.NewSignerFromSigner(priv)
	if err != nil {
		t.Fatalf("wrap mock server host key: %v", err)
	}
	return signer
}

// DefaultSessionHandler provides a default session handler that executes commands.
func DefaultSessionHandler() ChannelHandler {
	return func(channel ssh.Channel, requests <-chan *ssh.Request) {
		defer channel.Close()
		
		for req := range requests {
			switch req.Type {
			case "exec":
				// Simple echo implementation for testing
				cmd := string(req.Payload[4:]) // Skip the length prefix
				response := fmt.Sprintf("mock response for: %s\n", cmd)
				channel.Write([]byte(response))
				
				if req.WantReply {
					req.Reply(true, nil)
				}
				
				// Send exit status
				exitStatus := []byte{0, 0, 0, 0} // Success
				channel.SendRequest("exit-status", false, exitStatus)
				return
				
			case "shell":
				if req.WantReply {
					req.Reply(true, nil)
				}
				
				// Simple shell that echoes input
				go func() {
					buf := make([]byte, 1024)
					for {
						n, err := channel.Read(buf)
						if err != nil {
							return
						}
						channel.Write(buf[:n])
					}
				}()
				
			default:
				if req.WantReply {
					req.Reply(false, nil)
				}
			}
		}
	}
}

// EchoHandler returns a handler that echoes all input.
func EchoHandler() ChannelHandler {
	return func(channel ssh.Channel, requests <-chan *ssh.Request) {
		defer channel.Close()
		go io.Copy(channel, channel)
		ssh.DiscardRequests(requests)
	}
}