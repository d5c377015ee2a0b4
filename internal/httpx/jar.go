package httpx

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Jar is a cookie jar that can drop every cookie at once, which is how
// authentication cookies are discarded on session teardown.
type Jar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func NewJar() (*Jar, error) {
	j, err := newCookieJar()
	if err != nil {
		return nil, err
	}
	return &Jar{jar: j}, nil
}

func newCookieJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

func (j *Jar) Reset() error {
	fresh, err := newCookieJar()
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.jar = fresh
	j.mu.Unlock()
	return nil
}
