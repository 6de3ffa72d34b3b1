package retry

import "regexp"

// Classification is the outcome of classifying an error as transient,
// permanent, or unknown.
type Classification string

const (
	ClassificationTransient Classification = "transient"
	ClassificationPermanent Classification = "permanent"
	ClassificationUnknown   Classification = "unknown"
)

// transientHTTPStatus and permanentHTTPStatus are the exact status-code
// tables used to classify HTTP-sourced errors.
var transientHTTPStatus = map[int]bool{
	408: true, 429: true, 500: true, 502: true, 503: true, 504: true,
	520: true, 521: true, 522: true, 523: true, 524: true,
}

var permanentHTTPStatus = map[int]bool{
	400: true, 401: true, 403: true, 404: true, 405: true, 410: true, 422: true,
}

// transientNetworkCodes are the POSIX/DNS error codes treated as transient.
var transientNetworkCodes = map[string]bool{
	"ETIMEDOUT": true, "ECONNRESET": true, "ECONNREFUSED": true,
	"ENOTFOUND": true, "ENETUNREACH": true, "EHOSTUNREACH": true,
	"EPIPE": true, "EAI_AGAIN": true,
}

var transientMessageRe = regexp.MustCompile(`(?i)timeout|timed out|temporarily unavailable|rate limit|too many requests|service unavailable|server error|network error|connection reset|SQLITE_BUSY|SQLITE_LOCKED`)

var permanentMessageRe = regexp.MustCompile(`(?i)unauthorized|authentication failed|invalid api key|invalid_api_key|forbidden|access denied|not found|does not exist|invalid request|malformed`)

// ClassifiableError is implemented by errors that carry an HTTP status code
// or a network error code, allowing the classifier to skip message sniffing.
type ClassifiableError interface {
	error
	HTTPStatus() (int, bool)
	NetworkCode() (string, bool)
}

// Classify resolves the classification of err in the exact order: HTTP
// status, network code, permanent-message regex, transient-message regex,
// unknown. Unknown is deliberately not retried by default.
func Classify(err error) (Classification, string) {
	if err == nil {
		return ClassificationUnknown, "no error"
	}

	if ce, ok := err.(ClassifiableError); ok {
		if status, ok := ce.HTTPStatus(); ok {
			if transientHTTPStatus[status] {
				return ClassificationTransient, "http-status-transient"
			}
			if permanentHTTPStatus[status] {
				return ClassificationPermanent, "http-status-permanent"
			}
		}
		if code, ok := ce.NetworkCode(); ok {
			if transientNetworkCodes[code] {
				return ClassificationTransient, "network-code-transient"
			}
		}
	}

	msg := err.Error()
	if permanentMessageRe.MatchString(msg) {
		return ClassificationPermanent, "message-permanent"
	}
	if transientMessageRe.MatchString(msg) {
		return ClassificationTransient, "message-transient"
	}

	return ClassificationUnknown, "unclassified"
}
