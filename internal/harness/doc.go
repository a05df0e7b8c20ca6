// Package harness runs tracker scenarios described in YAML and compares
// their traces against golden files.
//
// # Scenario Format
//
//	name: event_limit
//	description: "Third event triggers a flush of all three"
//	policy: limit:3            # manual | limit:N | interval:D
//	store:
//	  kind: batch              # memory | batch
//	  batch_size: 2
//	fail_deliveries: [1]       # 1-based delivery attempts that fail
//	steps:
//	  - track: signup
//	    props: { plan: pro }
//	  - flush: true
//	    expect_error: DELIVERY_FAILURE
//	  - tick: true             # fire the interval timer
//	  - restart: true          # close the tracker, reopen the store
//	  - clear: true
//	expect_stored: [signup]
//	expect_delivered:
//	  - [signup]
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory blob store, a manual
// scheduler that only fires on tick steps, a recording flusher and a
// sequence ID generator, so the same scenario always renders the same trace.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/event_limit.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
