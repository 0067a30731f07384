package server

import (
	"crypto/subtle"
	"net/http"
)

// Request headers carrying the two passphrases. The system passphrase gates
// every API route; the register passphrase additionally gates registration.
const (
	SystemPassphraseHeader   = "X-System-Passphrase"
	RegisterPassphraseHeader = "X-Register-Passphrase"
)

func passphraseMatch(got string, want []byte) bool {
	return subtle.ConstantTimeCompare([]byte(got), want) == 1
}

func (s *Server) requireSystem(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !passphraseMatch(r.Header.Get(SystemPassphraseHeader), s.systemPass) {
			s.respondError(w, http.StatusUnauthorized, "invalid system passphrase")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireRegister(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !passphraseMatch(r.Header.Get(RegisterPassphraseHeader), s.registerPass) {
			s.respondError(w, http.StatusUnauthorized, "invalid register passphrase")
			return
		}
		next.ServeHTTP(w, r)
	})
}
