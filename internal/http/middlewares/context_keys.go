package middlewares

type ctxKey string

const (
	CtxRequestID ctxKey = "requestID"
	CtxSession   ctxKey = "session"
	CtxUser      ctxKey = "user"

	ctxScopeIssuer ctxKey = "scopeIssuer"
)
