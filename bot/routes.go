package bot

import (
	"context"
	"regexp"
)

// Matcher decides whether a postback event id selects a route.
type Matcher interface {
	Match(eventID string) bool
	String() string
}

type exactMatcher string

func (m exactMatcher) Match(eventID string) bool { return string(m) == eventID }
func (m exactMatcher) String() string            { return string(m) }

type patternMatcher struct {
	re *regexp.Regexp
}

func (m patternMatcher) Match(eventID string) bool { return m.re.MatchString(eventID) }
func (m patternMatcher) String() string            { return m.re.String() }

func Exact(eventID string) Matcher {
	return exactMatcher(eventID)
}

// Pattern compiles expr as an unanchored regular expression.
func Pattern(expr string) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return patternMatcher{re: re}, nil
}

func MustPattern(expr string) Matcher {
	return patternMatcher{re: regexp.MustCompile(expr)}
}

// RouteFunc handles a routed postback. eventID is the resolved event id.
type RouteFunc func(ctx context.Context, conv *Conversation, eventID string) error

type Route struct {
	Match  Matcher
	Handle RouteFunc
}

func On(match Matcher, handle RouteFunc) Route {
	return Route{Match: match, Handle: handle}
}

// Router is implemented by bots that declare their own postback routes.
type Router interface {
	PostbackRoutes() []Route
}
