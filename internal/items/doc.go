// Package items is the in-memory index of synced items and the reference graph
// between them.
//
// Local mutations (Create, Update, Delete, SetPresentation, AddReference) mark an item
// dirty and bump its revision. Linked items whose IsPublic result flips with the
// mutation are marked dirty in the same write. Remote state only enters through Commit, which stages
// every change on copies, persists it with one store.Changeset and then swaps the
// in-memory state.
//
// References point from an item's content to other items. Targets that are not known
// yet are kept as dangling and linked once the target arrives.
package items
