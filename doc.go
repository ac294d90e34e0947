// Package entitle provides a subscription and entitlement engine for
// multi-tenant SaaS applications.
//
// Entitle is designed as a library, not a service. Import it directly into
// your Go application and mount its HTTP handlers where you need them. It
// provides:
//
//   - A static, versioned plan catalog with per-resource quotas
//   - A guarded subscription state machine (free, pending, trialing,
//     active, cancelled, expired)
//   - Atomic check-and-increment usage counters with lazy anchored-monthly
//     rollover
//   - A non-expiring top-up credit ledger for AI generations
//   - Signed form-post checkout handoff with verification before any state
//     change
//   - Bounded read-only activation polling after the checkout handoff
//
// # Quick Start
//
// Create an engine with your preferred store and gateway:
//
//	import (
//	    entitle "github.com/stayforge/entitle"
//	    "github.com/stayforge/entitle/gateway"
//	    "github.com/stayforge/entitle/store/postgres"
//	)
//
//	store := postgres.New(groveDB)
//	gw := gateway.NewFormPost(endpoint, merchantID, secret)
//
//	eng := entitle.New(store, gw)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Every tenant always has a subscription; unknown tenants resolve to the
// free tier on first read. Paid plans are entered through a checkout
// handoff:
//
//	intent, err := eng.RequestSubscribe(ctx, tenantID, "growth", returnURL, cancelURL)
//	// Render intent.Checkout as an auto-submitting form.
//
// State only changes when the gateway's signed confirmation verifies:
//
//	sess, err := eng.ConfirmPayment(ctx, webhookFields)
//
// Entitlements are checked and spent through the gateway methods. A
// denial is a normal outcome, not a fault:
//
//	d, err := eng.Consume(ctx, tenantID, plan.ResourceAIGenerations, 1)
//	if entitle.IsQuotaExceeded(err) {
//	    // Offer a top-up or an upgrade; d carries the numbers.
//	}
//
// All monetary amounts use integer arithmetic in the smallest currency
// unit to avoid floating-point precision issues.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	sub_01h2xcejqtf2nbrexx3vqjhp41  // Subscription ID
//	pay_01h2xcejqtf2nbrexx3vqjhp41  // Payment session ID
//	uct_01h455vb4pex5vsknk084sn02q  // Usage counter ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package entitle
