package sqlinline

const QInsertLedgerEntry = `--sql e640603a-8e45-49d4-a8bc-c0eda88a7495
insert into credit_ledger (id, user_id, kind, amount, reservation_id, job_id, balance_after, created_at)
values ($1::uuid, $2::uuid, $3::text, $4::int, nullif($5::text, '')::uuid, nullif($6::text, '')::uuid, $7::int, $8::timestamptz);
`

// QSelectBalance derives the balance from the latest ledger entry; an empty
// ledger means zero credits.
const QSelectBalance = `--sql 1b495b52-8b4d-40cf-8f9b-cccaeae24f38
select coalesce(
    (select balance_after
     from credit_ledger
     where user_id = $1::uuid
     order by created_at desc, id desc
     limit 1),
    0);
`

const QListLedgerEntries = `--sql e8e8d60a-8218-4645-b54c-0db83f635e10
select id, user_id, kind, amount, coalesce(reservation_id::text, ''), coalesce(job_id::text, ''), balance_after, created_at
from credit_ledger
where user_id = $1::uuid
order by created_at desc, id desc
limit $2::int;
`
