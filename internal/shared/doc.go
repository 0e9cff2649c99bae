// Package shared contains the application-wide error taxonomy.
//
// Adapters keep their own sentinel errors and map them to a Kind at their
// boundary (see scheduler.Classify). Chat and HTTP surfaces only look at the
// Kind and at UserMessage, so raw internal error text never reaches a user.
//
// # Kind Priority
//
// When an error carries several kinds (errors.Join, double marking), KindOf
// returns the first match in this order:
//
//	KindCanceled, KindTimeout, KindNotFound, KindValidation, KindForbidden,
//	KindConflict, KindRateLimited, KindDependencyFailure, KindInternal
//
// # Usage
//
//	if err := market.Sales(ctx, q); err != nil {
//	    return shared.MarkKind(err, shared.KindDependencyFailure)
//	}
//
//	reply := shared.UserMessage(err)
package shared
