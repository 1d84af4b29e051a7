package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultCallbackPort is the fixed local port the platform redirects the
// browser to in the callback login transport.
const DefaultCallbackPort = 8085

const callbackSuccessPage = "You have successfully logged in! You can close this window now."

// CallbackListener is a bounded-lifetime local HTTP server that accepts
// exactly one form-encoded POST carrying the authorization data, replies with
// a small HTML page, and shuts down. It is always released on every exit
// path, including context cancellation.
type CallbackListener struct {
	port     int
	server   *http.Server
	listener net.Listener
	resultCh chan url.Values
	errCh    chan error
	once     sync.Once
	stopOnce sync.Once
}

// NewCallbackListener creates a listener for the given local port. Port 0
// selects the fixed default.
func NewCallbackListener(port int) *CallbackListener {
	if port == 0 {
		port = DefaultCallbackPort
	}
	return &CallbackListener{
		port:     port,
		resultCh: make(chan url.Values, 1),
		errCh:    make(chan error, 1),
	}
}

// Start binds the local port and begins serving. It returns the redirect URL
// to hand to the platform. The listener stops when ctx is cancelled.
func (l *CallbackListener) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", l.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to bind callback listener on %s: %w", addr, err)
	}
	l.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handlePost)
	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case l.errCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		l.Stop()
	}()

	return fmt.Sprintf("http://localhost:%d", l.port), nil
}

// Wait blocks until the authorization POST arrives, the server fails, or ctx
// is cancelled.
func (l *CallbackListener) Wait(ctx context.Context) (url.Values, error) {
	select {
	case form := <-l.resultCh:
		return form, nil
	case err := <-l.errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handlePost serves the single expected POST. Anything else is rejected.
func (l *CallbackListener) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var served bool
	l.once.Do(func() {
		served = true
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			select {
			case l.errCh <- fmt.Errorf("failed to parse callback form: %w", err):
			default:
			}
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, callbackSuccessPage)

		select {
		case l.resultCh <- r.PostForm:
		default:
		}

		// Let the response flush before tearing the server down.
		go func() {
			time.Sleep(time.Second)
			l.Stop()
		}()
	})

	if !served {
		http.Error(w, "callback already processed", http.StatusBadRequest)
	}
}

// Stop tears the listener down. Safe to call more than once.
func (l *CallbackListener) Stop() {
	l.stopOnce.Do(func() {
		if l.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.server.Shutdown(ctx)
		}
		if l.listener != nil {
			_ = l.listener.Close()
		}
	})
}
