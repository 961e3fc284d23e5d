// Package planner partitions pending work into plan documents.
//
// A plan is a JSON file listing (entity, artifact) entries for one worker
// process. Planning reserves every entry it writes by marking it planned in
// the State Store, so a later planner run or a live worker run does not
// hand the same artifact out again. Entries cut off by the package cap
// keep their pending state.
package planner
