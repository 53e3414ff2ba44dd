// Package workflow advances queue tasks through the generation pipeline.
//
// The Manager polls the queue, reclaims stale work via heartbeats, and feeds
// tasks into registered stage handlers (script generation, scene planning,
// asset generation, video synthesis, compositing) while capturing progress and
// failure metadata. Every status change is persisted before the work it
// announces begins, so a crash never leaves effects the queue does not know
// about.
//
// The workflow runs two independent lanes: generation (scripting through
// synthesis) and render (compositing). Each lane polls for tasks matching its
// statuses and processes them independently, so compositing of task A can
// proceed while task B generates assets.
//
// Add new lifecycle stages by extending StageSet, updating the queue status
// enums, and teaching the manager how to transition tasks; this package is the
// authoritative home for that coordination logic.
package workflow
