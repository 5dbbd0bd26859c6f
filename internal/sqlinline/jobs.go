package sqlinline

const QInsertJob = `--sql 4ce66587-bbdf-4993-993c-f56fa78c13a6
insert into generation_jobs (id, user_id, status, input_image_ref, prompt, resolution, cost, reservation_id, created_at, updated_at)
values ($1::uuid, $2::uuid, 'queued', $3::text, $4::text, $5::text, $6::int, $7::uuid, now(), now());
`

const QSelectJobByID = `--sql 81f5cec8-df80-4144-97c0-220a43f4957c
select id, user_id, status, input_image_ref, prompt, resolution, cost, reservation_id, coalesce(result_ref, ''), coalesce(error_message, ''), created_at, updated_at
from generation_jobs
where id = $1::uuid
limit 1;
`

const QSelectActiveJobByUser = `--sql d9ca682d-f9d9-4026-8932-23e06cb47e65
select id, user_id, status, input_image_ref, prompt, resolution, cost, reservation_id, coalesce(result_ref, ''), coalesce(error_message, ''), created_at, updated_at
from generation_jobs
where user_id = $1::uuid
  and status in ('queued', 'running')
order by created_at desc
limit 1;
`

const QListJobsByUser = `--sql 0807332d-78b7-4361-8245-c44e17750035
select id, user_id, status, input_image_ref, prompt, resolution, cost, reservation_id, coalesce(result_ref, ''), coalesce(error_message, ''), created_at, updated_at
from generation_jobs
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`

// QUpdateJobStatus is guarded so a terminal row is never rewritten: a late
// worker result cannot resurrect a cancelled job.
const QUpdateJobStatus = `--sql 0acf129b-0dec-40e8-ba02-54e8a55a96c0
update generation_jobs
set status = $2::text,
    result_ref = nullif($3::text, ''),
    error_message = nullif($4::text, ''),
    updated_at = now()
where id = $1::uuid
  and status in ('queued', 'running');
`

const QWorkerClaimJob = `--sql d3eacb2a-5dbf-47b6-a868-5a13567005fa
with next_job as (
    select id
    from generation_jobs
    where status = 'queued'
    order by created_at asc
    for update skip locked
    limit 1
),
updated as (
    update generation_jobs
    set status = 'running', updated_at = now()
    where id in (select id from next_job)
    returning id, user_id, input_image_ref, prompt, resolution, cost
)
select * from updated;
`
