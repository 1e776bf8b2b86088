package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// contextKeyCookieJar caches the request's CookieJar in the Echo context so
// the route guard and handlers observe each other's writes.
const contextKeyCookieJar = "auth_cookie_jar"

// CookieJar is the per-request cookie capability the session service
// needs: read a value, write a cookie, delete a cookie.
type CookieJar interface {
	Get(name string) (string, bool)
	Set(cookie *http.Cookie)
	Delete(name string)
}

// echoCookieJar adapts an Echo context to CookieJar. Cookies written during
// the request shadow the ones the client sent, and a second write of the
// same name replaces the earlier Set-Cookie header instead of adding one.
type echoCookieJar struct {
	c       echo.Context
	written map[string]*http.Cookie
}

// EchoCookies returns the CookieJar for this request.
func EchoCookies(c echo.Context) CookieJar {
	if jar, ok := c.Get(contextKeyCookieJar).(*echoCookieJar); ok {
		return jar
	}
	jar := &echoCookieJar{c: c, written: make(map[string]*http.Cookie)}
	c.Set(contextKeyCookieJar, jar)
	return jar
}

// Get implements CookieJar.
func (j *echoCookieJar) Get(name string) (string, bool) {
	if cookie, ok := j.written[name]; ok {
		if cookie.MaxAge < 0 || cookie.Value == "" {
			return "", false
		}
		return cookie.Value, true
	}

	cookie, err := j.c.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Set implements CookieJar.
func (j *echoCookieJar) Set(cookie *http.Cookie) {
	h := j.c.Response().Header()
	existing := h.Values(echo.HeaderSetCookie)
	h.Del(echo.HeaderSetCookie)
	for _, line := range existing {
		if parsed, err := http.ParseSetCookie(line); err == nil && parsed.Name == cookie.Name {
			continue
		}
		h.Add(echo.HeaderSetCookie, line)
	}

	j.c.SetCookie(cookie)
	j.written[cookie.Name] = cookie
}

// Delete implements CookieJar.
func (j *echoCookieJar) Delete(name string) {
	j.Set(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
}
