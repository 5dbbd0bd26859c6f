package sqlinline

const QInsertUser = `--sql 9430eee7-2be7-479f-80ad-3c6fe08b5f09
insert into users (id, email, name, picture, google_sub, password_hash, locale, created_at, updated_at)
values ($1::uuid, lower($2::text), $3::text, $4::text, nullif($5::text, ''), nullif($6::text, ''), $7::text, now(), now());
`

const QSelectUserByID = `--sql 76a915b3-190e-4816-87a7-2c7ca7b61b6e
select id, email, coalesce(name, ''), coalesce(picture, ''), coalesce(google_sub, ''), coalesce(password_hash, ''), coalesce(locale, 'en'), created_at, updated_at
from users
where id = $1::uuid
limit 1;
`

const QSelectUserByEmail = `--sql 256527c6-faec-45a9-8cbf-81c4758f960c
select id, email, coalesce(name, ''), coalesce(picture, ''), coalesce(google_sub, ''), coalesce(password_hash, ''), coalesce(locale, 'en'), created_at, updated_at
from users
where email = lower($1::text)
limit 1;
`

const QUpsertGoogleUser = `--sql cb82f406-6a57-49d4-b17c-eb5441c33f2f
insert into users (id, email, name, picture, google_sub, locale, created_at, updated_at)
values ($1::uuid, lower($2::text), $3::text, $4::text, $5::text, $6::text, now(), now())
on conflict (email) do update set
    name = excluded.name,
    picture = excluded.picture,
    google_sub = excluded.google_sub,
    updated_at = now()
returning id, email, coalesce(name, ''), coalesce(picture, ''), coalesce(google_sub, ''), coalesce(password_hash, ''), coalesce(locale, 'en'), created_at, updated_at;
`
