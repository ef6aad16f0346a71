// Package coordinator owns the rendezvous side of a codetango run.
//
// A Coordinator listens on a unix socket, identifies exactly two participants,
// and runs one handler per participant. Submissions are paired by barrier id;
// the second arrival triggers the comparison and releases both participants
// with the same verdict.
package coordinator
