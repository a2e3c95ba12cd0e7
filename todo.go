/*
	Project: PrepCards - classroom-tested prep cards for teachers
	Target: primary & middle schools (math, science, languages)
*/
package prepcards

/*
TODO: scheduler: run the `pipeline` job nightly instead of via `admin runjob` / POST /v1/jobs/pipeline
TODO: reflections: page GET /v1/reflections (limit + cursor on created_at, id)
TODO: signals: expose theme signals per card version on GET /v1/cards/:id

FE:
	- Teacher App
		* prep card for today's lesson
		* 1-tap reflection after class
	- CRP Dashboard
		* flagged signals, sorted by failure rate
		* review + new card version form

------------------------------------ Version X ----------------------------------------
FIXME:Edge-case:
- Same topic taught in 2 situations the same day: 2 reflections, or 1 with both situations ???
- Card archived while teachers still have v(n) open: reflection lands on v(n+1) (current behavior)

- cmds:
	* admin export -signals (CSV for CRP offline reviews)
*/
