// Package spies provides test doubles that capture log, metric and tracing calls of circulation components.
package spies
