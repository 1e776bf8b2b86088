// Package pages holds the server-rendered HTML pages: the landing page,
// the sign-in page, and the error page. Components live in the .templ files;
// run `templ generate` after editing them.
package pages

//go:generate templ generate

// SignInView is the data the sign-in form shows back to the user after a
// failed attempt.
type SignInView struct {
	CSRFToken string
	Email     string
	Next      string

	// Banner is a form-level error such as bad credentials.
	Banner string

	// Fields maps input names to inline validation messages.
	Fields map[string]string
}
