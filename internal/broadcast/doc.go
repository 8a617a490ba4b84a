// Package broadcast implements live content delivery to display clients.
//
// Hub is the façade: transports report client joins and leaves, the admin layer
// publishes payload changes. Registry does the membership bookkeeping and Animator
// drives one color cycle per watched pixel-map channel. Per-channel state is
// serialized by a lock scoped to that channel, so different channels never block
// each other. Delivery goes out through Transport implementations in adapter/.
package broadcast
