// Package chat implements the client-side view-model of a conversation held in
// a remote, eventually consistent object store.
//
// The subpackages keep the live object collection, the privacy-scoped message
// projection and the optimistic mutations apart, so the store stays the source
// of truth while every local view updates immediately on user action.
package chat
