/*
Package ordering manages ordered collections: items that belong to a group and
carry a 1-based position which is dense within the group.

The Store persists items, the Allocator computes and applies positions for
append, insert, delete, reorder and move, and the Reporter validates, repairs
and summarizes a group. Manager combines all three.

Every mutation of the Allocator runs in one read committed transaction which
first takes a transaction scoped advisory lock on the group. Concurrent
mutations of the same group are therefore serialized by the database, while
different groups proceed in parallel. After a successful mutation the
positions of the group are exactly 1..N.
*/
package ordering
