// Package batch bundles many API requests into JSON batch calls and splits
// the answers back out per request.
//
// A Content is one physical batch of at most 20 steps. A Collection spreads
// any number of steps over as many physical batches as needed:
//
//	coll, _ := batch.NewCollection(batch.DefaultLimit)
//	meID, _ := coll.AddRequest(meReq)
//	_, _ = coll.AddStep(batch.Step{ID: "photo", Request: photoReq, DependsOn: []string{meID}})
//
//	exec, _ := batch.NewExecutor(c.Handler(), c.URL("$batch"))
//	responses, err := exec.Execute(ctx, coll)
//
//	var me User
//	err = responses.DecodeResponseByID(meID, &me)
//
// Executing a collection seals it. Failed steps can be re-run with
// Collection.NewWithFailedSteps, which copies the original step definitions
// of every non-2xx step into a fresh collection.
//
// Steps may only depend on steps of the same physical batch.
package batch
