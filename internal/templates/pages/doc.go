// Package pages holds the few HTML pages Stream serves to browsers.
// Components are written as .templ sources; run `templ generate` after
// editing them.
package pages
