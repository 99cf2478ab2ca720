// Package deduplication decides whether an item repeats earlier work.
//
// # Overview
//
// A search collaborator proposes candidate items with a similarity score.
// The Checker sorts them (stable, highest score first) and asks a Verifier
// about the top K, one at a time. The first positive judgment whose
// confidence reaches ConfidenceThreshold decides the verdict:
//
//   - an open candidate gives StatusDuplicateOpen
//   - a closed candidate gives StatusPriorArtClosed
//
// Otherwise the verdict is StatusNoMatch. Confidence gating is mandatory: a
// positive judgment below the threshold is never a match, though one at or
// above PossibleThreshold is recorded as a possible duplicate for the
// effector to mention.
//
// # Cost
//
// An empty candidate list yields NoMatch with confidence 1.0 and no
// verifier calls. At most TopK verifier calls are made per check, fewer
// when an early candidate matches.
//
// # Error Handling
//
// A verifier error or an invalid judgment aborts the check with an error
// wrapping ErrVerificationFailed. The caller retries the whole check and,
// with FailOpen set, treats an exhausted retry budget as no match.
//
// # Usage
//
//	checker, err := deduplication.NewChecker(supervisor, deduplication.DefaultConfig())
//	if err != nil {
//	    return fmt.Errorf("failed to create checker: %w", err)
//	}
//	verdict, err := checker.Check(ctx, item, facts, candidates)
//	if err != nil {
//	    return err
//	}
//	if verdict.IsMatch() {
//	    log.Printf("%s matches #%d (%.2f)", item.Ref(), *verdict.MatchedItemID, verdict.Confidence)
//	}
package deduplication
