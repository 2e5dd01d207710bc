// Package topicmgr keeps a registry of the pubsub topics in use so that
// every room topic is validated once and can be discovered at runtime.
//
// Topics are grouped by namespace ("room" for chat events, "presence" for
// snapshots). Each room gets one topic per namespace:
//
//	t := topicmgr.Define(topicmgr.TopicConfig{
//		Name:        "room.general.events",
//		Namespace:   "room",
//		Room:        "general",
//		Description: "Chat events for room general",
//	})
//	t, err := topicmgr.Default().Ensure(t)
//
// Registered topics can be listed:
//
//	all := topicmgr.Default().List()
//	presence := topicmgr.Default().ListByNamespace("presence")
package topicmgr
