// Package dedupe tracks client-supplied message ids so that a retried
// POST /uta/message is answered with the first delivery's reply instead of
// invoking an adapter again.
package dedupe
