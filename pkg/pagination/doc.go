// Package pagination walks paged collection responses item by item.
//
// The service returns collections a page at a time; a page carries the items
// plus either an @odata.nextLink (more pages follow) or an @odata.deltaLink
// (the end of a change-tracking round). The Iterator hides the page
// boundaries behind a callback:
//
//	first, err := pagination.ParseCollectionPage[User](resp)
//	it, err := pagination.New(c.Handler(), first, func(u User) bool {
//		fmt.Println(u.DisplayName)
//		return true // false pauses the iterator
//	})
//	err = it.Iterate(ctx)
//
// State transitions:
//
//	NotStarted -> IntrapageIteration -> Paused | InterpageIteration | Delta | Complete
//	InterpageIteration -> IntrapageIteration (after each fetched page)
//
// A paused iterator continues with Iterate or Resume. An iterator in the Delta
// state fetches the delta link on Resume, which starts the next sync round.
// Next links are remembered; a repeated next link fails with
// sdkerrors.CodeNextLinkLoopDetected instead of looping forever.
//
// An Iterator is not safe for concurrent use.
package pagination
