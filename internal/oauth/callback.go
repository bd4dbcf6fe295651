package oauth

import (
	"context"
	"fmt"
	"net"
	"net/http"
)

const successPage = `<!DOCTYPE html>
<html><head><title>assetsync - authorization successful</title></head>
<body><h1>Authorization successful</h1>
<p>You can close this tab and return to the terminal.</p></body></html>`

const errorPage = `<!DOCTYPE html>
<html><head><title>assetsync - authorization failed</title></head>
<body><h1>Authorization failed</h1>
<p>%s</p><p>Close this tab and try again from the terminal.</p></body></html>`

// waitForCallback serves a single OAuth redirect on addr and returns the
// authorization code. The state parameter is validated against
// expectedState before the code is accepted.
func waitForCallback(ctx context.Context, addr, path, expectedState string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if state := q.Get("state"); state != expectedState {
			http.Error(w, fmt.Sprintf(errorPage, "invalid state parameter"), http.StatusBadRequest)
			done <- result{err: fmt.Errorf("state mismatch in callback (possible CSRF)")}
			return
		}

		if errCode := q.Get("error"); errCode != "" {
			desc := q.Get("error_description")
			http.Error(w, fmt.Sprintf(errorPage, errCode), http.StatusBadRequest)
			done <- result{err: fmt.Errorf("%w: %s %s", ErrAuthorizationDenied, errCode, desc)}
			return
		}

		code := q.Get("code")
		if code == "" {
			http.Error(w, fmt.Sprintf(errorPage, "missing authorization code"), http.StatusBadRequest)
			done <- result{err: fmt.Errorf("callback request carried no authorization code")}
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, successPage)
		done <- result{code: code}
	})

	server := &http.Server{Handler: mux}
	go server.Serve(listener)
	defer server.Close()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		return res.code, nil
	}
}
